package main

import "github.com/oshokin/translator-release/cmd/translator-release/cmd"

func main() {
	cmd.Execute()
}
