// Command karmasim drives simulated peripherals through the karma runtime.
package main

func main() {
	Execute()
}
