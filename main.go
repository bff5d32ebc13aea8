package main

import "github.com/nohvenell/steam-game-crawler/cmd"

func main() {
	cmd.Execute()
}
