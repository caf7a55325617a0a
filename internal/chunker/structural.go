package chunker

import (
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// structuralParser is shared across calls; goldmark parsers are safe for
// concurrent use.
var structuralParser = sync.OnceValue(func() goldmark.Markdown {
	return goldmark.New(goldmark.WithExtensions(extension.Table))
})

// classifyStructural tags a chunk with its dominant block kind. The chunk
// body is parsed as markdown and top-level blocks vote weighted by the
// source bytes they span; plain prose lands on paragraph.
func classifyStructural(body string) StructuralType {
	src := []byte(body)
	reader := text.NewReader(src)
	doc := structuralParser().Parser().Parse(reader)

	weights := map[StructuralType]int{}
	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		weights[blockType(node)] += blockWeight(node, src)
	}

	best := StructuralParagraph
	bestWeight := 0
	// Deterministic order so equal weights do not flap between runs.
	for _, t := range []StructuralType{StructuralParagraph, StructuralHeading, StructuralList, StructuralTable, StructuralCode} {
		if w := weights[t]; w > bestWeight {
			best = t
			bestWeight = w
		}
	}
	return best
}

func blockType(node ast.Node) StructuralType {
	switch node.(type) {
	case *ast.Heading:
		return StructuralHeading
	case *ast.List:
		return StructuralList
	case *extast.Table:
		return StructuralTable
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		return StructuralCode
	default:
		return StructuralParagraph
	}
}

// blockWeight approximates the source bytes a block covers by summing its
// line segments (goldmark block nodes do not expose a single span).
func blockWeight(node ast.Node, src []byte) int {
	total := 0
	if lines := node.Lines(); lines != nil {
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			total += seg.Len()
		}
	}
	if total == 0 {
		// Container blocks (lists, tables) keep their text on children.
		for child := node.FirstChild(); child != nil; child = child.NextSibling() {
			total += blockWeight(child, src)
		}
	}
	if total == 0 {
		total = 1
	}
	return total
}
