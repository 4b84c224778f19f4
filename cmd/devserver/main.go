// Command devserver runs the development session orchestrator
package main

func main() {
	Execute()
}
