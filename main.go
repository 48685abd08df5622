package main

import "github.com/maxvaer/w3ccheck/cmd"

func main() {
	cmd.Execute()
}
