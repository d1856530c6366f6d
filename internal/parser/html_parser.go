package parser

import (
	"context"
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/elijahthis/crawl-accessory/internal/shared"
)

type HTMLParser struct{}

func NewHTMLParser() *HTMLParser {
	return &HTMLParser{}
}

// Parse collects hrefs, the document title and visible text.
func (p *HTMLParser) Parse(ctx context.Context, r io.Reader) (shared.ParsedData, error) {
	data := shared.ParsedData{}
	tokenizer := html.NewTokenizer(r)

	var text strings.Builder
	inTitle, skip := false, 0

	for {
		tokenType := tokenizer.Next()
		if tokenType == html.ErrorToken {
			data.Text = strings.TrimSpace(text.String())
			if tokenizer.Err() == io.EOF {
				return data, nil
			}
			return data, tokenizer.Err()
		}

		token := tokenizer.Token()
		switch tokenType {
		case html.StartTagToken, html.SelfClosingTagToken:
			switch token.Data {
			case "a":
				for _, attr := range token.Attr {
					if attr.Key == "href" && attr.Val != "" {
						data.Links = append(data.Links, attr.Val)
					}
				}
			case "title":
				inTitle = tokenType == html.StartTagToken
			case "script", "style":
				if tokenType == html.StartTagToken {
					skip++
				}
			}
		case html.EndTagToken:
			switch token.Data {
			case "title":
				inTitle = false
			case "script", "style":
				if skip > 0 {
					skip--
				}
			}
		case html.TextToken:
			trimmed := strings.TrimSpace(token.Data)
			if trimmed == "" || skip > 0 {
				continue
			}
			if inTitle && data.Title == "" {
				data.Title = trimmed
				continue
			}
			text.WriteString(trimmed)
			text.WriteByte(' ')
		}
	}
}
