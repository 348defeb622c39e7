package notion

import (
	"github.com/jomei/notionapi"

	"github.com/sells-group/social-listener/internal/model"
)

// maxRichText is Notion's per-block rich text limit.
const maxRichText = 2000

// BuildLeadPage maps a promoted lead onto a page create request for the
// lead database. Property names follow the shared CRM board schema.
func BuildLeadPage(dbID string, lead model.Lead) *notionapi.PageCreateRequest {
	title := lead.PostTitle
	if title == "" {
		title = truncate(lead.PostContent, 80)
	}

	props := notionapi.Properties{
		"Name": notionapi.TitleProperty{
			Title: richText(title),
		},
		"Platform": notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(lead.Platform)},
		},
		"Status": notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(lead.Status)},
		},
		"Confidence": notionapi.NumberProperty{
			Number: lead.Confidence,
		},
		"Author": notionapi.RichTextProperty{
			RichText: richText(lead.Author),
		},
		"Reason": notionapi.RichTextProperty{
			RichText: richText(truncate(lead.Reason, maxRichText)),
		},
	}
	if lead.SuggestedService != "" {
		props["Service"] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: lead.SuggestedService},
		}
	}
	if lead.PostURL != "" {
		props["URL"] = notionapi.URLProperty{URL: lead.PostURL}
	}

	req := &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(dbID),
		},
		Properties: props,
	}

	if lead.PostContent != "" {
		req.Children = []notionapi.Block{
			&notionapi.ParagraphBlock{
				BasicBlock: notionapi.BasicBlock{
					Object: notionapi.ObjectTypeBlock,
					Type:   notionapi.BlockTypeParagraph,
				},
				Paragraph: notionapi.Paragraph{
					RichText: richText(truncate(lead.PostContent, maxRichText)),
				},
			},
		}
	}
	return req
}

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{
		{Text: &notionapi.Text{Content: s}},
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
