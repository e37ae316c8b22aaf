package main

import "os"

func main() {
	// the dig/wire variants exist to compare DI styles; manual wiring is
	// the default
	switch os.Getenv("DI") {
	case "dig":
		startWithDig()
	case "wire":
		startWithWire()
	default:
		startManual()
	}
}
