package report

// RunStyle is the inline formatting applied to a run.
type RunStyle struct {
	Bold   bool
	Italic bool
	Size   int // half-points
	Color  string
}

const (
	TitleColor   = "111111"
	HeadingColor = "1F2937"
	TitleSize    = 32
	HeadingSize  = 26
)

// StyleMap centralizes the formatting of report elements.
var StyleMap = map[string]RunStyle{
	"title": {
		Bold:  true,
		Size:  TitleSize,
		Color: TitleColor,
	},
	"clauseHeading": {
		Bold:  true,
		Size:  HeadingSize,
		Color: HeadingColor,
	},
	"label": {
		Bold: true,
	},
	"meta": {
		Italic: true,
	},
}
