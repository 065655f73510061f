package main

import "github.com/k1rakishou/chanfetch/cmd"

func main() {
	cmd.Execute()
}
