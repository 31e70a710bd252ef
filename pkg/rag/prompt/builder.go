package prompt

import (
	"fmt"
	"strings"

	"ai-docqa-be/internal/entity"
)

// NoContextAnswer is the fixed reply when retrieval returns nothing.
const NoContextAnswer = "I couldn't find relevant information in the document to answer your question."

// GroundedBuilder renders the question-answering prompt. The output depends
// only on the question and the segments in retrieval order.
type GroundedBuilder struct {
	question string
	segments []*entity.ScoredSegment
}

func NewGroundedBuilder(question string, segments []*entity.ScoredSegment) *GroundedBuilder {
	return &GroundedBuilder{
		question: question,
		segments: segments,
	}
}

func (b *GroundedBuilder) Build() string {
	var prompt strings.Builder

	b.writeTask(&prompt)
	b.writeContext(&prompt)
	b.writeQuestion(&prompt)

	return prompt.String()
}

func (b *GroundedBuilder) writeTask(prompt *strings.Builder) {
	prompt.WriteString("You are a helpful AI assistant that answers questions based on provided document context.\n\n")
	prompt.WriteString("Use the following context to answer the user's question. If the answer cannot be found in the context, say so clearly.\n\n")
}

func (b *GroundedBuilder) writeContext(prompt *strings.Builder) {
	prompt.WriteString("Context:\n")
	for i, s := range b.segments {
		if i > 0 {
			prompt.WriteString("\n\n")
		}
		fmt.Fprintf(prompt, "[Context %d]:\n%s", i+1, s.Segment.Text)
	}
	prompt.WriteString("\n\n")
}

func (b *GroundedBuilder) writeQuestion(prompt *strings.Builder) {
	prompt.WriteString("Question: ")
	prompt.WriteString(b.question)
	prompt.WriteString("\n\n")
	prompt.WriteString("Answer: Please provide a comprehensive answer based on the context above. ")
	prompt.WriteString("If you reference specific information, indicate which context section it comes from.")
}

// Grounding converts retrieval results into the list stored on the answer.
func Grounding(segments []*entity.ScoredSegment) []entity.GroundingSegment {
	out := make([]entity.GroundingSegment, len(segments))
	for i, s := range segments {
		out[i] = entity.GroundingSegment{
			SegmentIndex: s.Segment.Index,
			Text:         s.Segment.Text,
			Score:        s.Score,
		}
	}
	return out
}
