package main

import "GreenLedger/server/internal/bootstrap"

func main() {
	bootstrap.Run()
}
