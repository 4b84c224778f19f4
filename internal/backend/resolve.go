package backend

import (
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// shellWords are handled by /bin/sh itself and never need a PATH lookup
var shellWords = map[string]bool{
	".": true, ":": true, "[": true, "{": true, "!": true,
	"alias": true, "break": true, "case": true, "cd": true, "command": true,
	"continue": true, "echo": true, "eval": true, "exec": true, "exit": true,
	"export": true, "false": true, "for": true, "if": true, "kill": true,
	"printf": true, "pwd": true, "read": true, "readonly": true, "set": true,
	"shift": true, "source": true, "test": true, "time": true, "trap": true,
	"true": true, "ulimit": true, "umask": true, "unset": true, "until": true,
	"wait": true, "while": true,
}

// programOf returns the external program a shell command starts with,
// skipping leading VAR=value assignments. It returns "" when only the shell
// can tell: builtins, expansions, quoting and subshells.
func programOf(command string) string {
	for _, word := range strings.Fields(command) {
		cut := false
		if i := strings.IndexAny(word, ";&|<>()"); i >= 0 {
			word, cut = word[:i], true
		}
		if word == "" {
			return ""
		}
		if !cut && isAssignment(word) {
			continue
		}
		if strings.ContainsAny(word, "$`'\"*?[~\\=") || shellWords[word] {
			return ""
		}
		return word
	}
	return ""
}

func isAssignment(word string) bool {
	i := strings.IndexByte(word, '=')
	if i <= 0 {
		return false
	}
	for j, c := range word[:i] {
		switch {
		case c == '_', c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z':
		case j > 0 && c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}

// lookProgram finds name the way the shell will: relative paths against cwd,
// bare names along the child's PATH.
func lookProgram(name string, env []string, cwd string) (string, error) {
	if strings.Contains(name, "/") {
		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(cwd, path)
		}
		if err := checkExecutable(path); err != nil {
			return "", &exec.Error{Name: name, Err: err}
		}
		return path, nil
	}

	for _, dir := range filepath.SplitList(envValue(env, "PATH")) {
		if dir == "" {
			dir = "."
		}
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(cwd, dir)
		}
		path := filepath.Join(dir, name)
		if checkExecutable(path) == nil {
			return path, nil
		}
	}
	return "", &exec.Error{Name: name, Err: exec.ErrNotFound}
}

func checkExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	mode := info.Mode()
	if mode.IsDir() {
		return fs.ErrPermission
	}
	if runtime.GOOS != "windows" && mode&0111 == 0 {
		return fs.ErrPermission
	}
	return nil
}

// envValue returns the last value of key in a KEY=value list
func envValue(env []string, key string) string {
	prefix := key + "="
	for i := len(env) - 1; i >= 0; i-- {
		if strings.HasPrefix(env[i], prefix) {
			return env[i][len(prefix):]
		}
	}
	return ""
}
