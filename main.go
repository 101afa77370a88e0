package main

import "github.com/kozaktomas/blinkpay/cmd"

func main() {
	cmd.Execute()
}
