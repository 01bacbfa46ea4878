package main

import "github.com/jake-scott/kasa-cli/cmd"

func main() {
	cmd.Execute()
}
