package main

import (
	"github.com/elijahthis/crawl-accessory/cmd"
	"github.com/elijahthis/crawl-accessory/internal/shared"
)

func main() {
	shared.InitLogger("crawler", shared.LogOptions{})

	cmd.ExecuteCrawler()
}
