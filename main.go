package main

import "github.com/andresmejia3/signcap/cmd"

func main() {
	cmd.Execute()
}
