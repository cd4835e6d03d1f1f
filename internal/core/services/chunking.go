package services

import (
	"fmt"
	"strings"

	"github.com/ferrule-labs/docstream-core/internal/core/domain"
)

// CharsPerToken is the token approximation used across the whole system:
// one token is four characters. Chunk sizes, overlaps, and provider limits
// all speak this unit, so it must stay consistent everywhere.
const CharsPerToken = 4

// sentenceBackoffWindow is how far back from the window end the sliding
// strategy looks for a sentence boundary before cutting mid-sentence.
const sentenceBackoffWindow = 100

// ChunkOptions controls a single chunking run.
type ChunkOptions struct {
	MaxTokens     int
	OverlapTokens int
	Strategy      domain.ChunkingStrategy
}

// DefaultChunkOptions returns the system-wide defaults: 512-token windows
// with 100 tokens of overlap.
func DefaultChunkOptions() ChunkOptions {
	return ChunkOptions{
		MaxTokens:     512,
		OverlapTokens: 100,
		Strategy:      domain.ChunkingSlidingWindow,
	}
}

// Chunker splits extracted text into overlapping, offset-addressed chunks.
type Chunker struct{}

// NewChunker creates a chunking service.
func NewChunker() *Chunker {
	return &Chunker{}
}

// ChunkText splits text per the given options. Chunk content is always a
// slice of the original text, so [Start,End) offsets are exact, indices are
// contiguous from zero, and every strategy terminates on any input.
func (c *Chunker) ChunkText(text string, opts ChunkOptions) []domain.TextChunk {
	if text == "" {
		return nil
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultChunkOptions().MaxTokens
	}
	if opts.OverlapTokens < 0 {
		opts.OverlapTokens = 0
	}
	if opts.OverlapTokens >= opts.MaxTokens {
		opts.OverlapTokens = opts.MaxTokens - 1
	}

	switch opts.Strategy {
	case domain.ChunkingSentence:
		return c.chunkBySegments(text, opts, splitSentences(text))
	case domain.ChunkingParagraph, domain.ChunkingMarkdown:
		// markdown shares the blank-line segmentation of paragraph chunking
		return c.chunkBySegments(text, opts, splitParagraphs(text))
	case domain.ChunkingFixed:
		return c.chunkWindow(text, opts, false)
	default:
		// sliding_window, semantic, and anything unrecognised
		return c.chunkWindow(text, opts, true)
	}
}

// chunkWindow advances a character window of MaxTokens*4 over the text.
// With backoff enabled, a window that does not reach end-of-text retreats to
// the nearest ". " inside its last 100 characters. The step is always at
// least one character, which guarantees termination.
func (c *Chunker) chunkWindow(text string, opts ChunkOptions, backoff bool) []domain.TextChunk {
	maxChars := opts.MaxTokens * CharsPerToken
	overlapChars := opts.OverlapTokens * CharsPerToken

	var chunks []domain.TextChunk
	start := 0

	for start < len(text) {
		end := start + maxChars
		if end >= len(text) {
			end = len(text)
		} else if backoff {
			searchFrom := end - sentenceBackoffWindow
			if searchFrom < start {
				searchFrom = start
			}
			if idx := strings.LastIndex(text[searchFrom:end], ". "); idx >= 0 {
				end = searchFrom + idx + 2
			}
		}

		chunks = append(chunks, domain.TextChunk{
			Index:      len(chunks),
			Content:    text[start:end],
			Start:      start,
			End:        end,
			Strategy:   opts.Strategy,
			TokenCount: approxTokens(end - start),
		})

		if end >= len(text) {
			break
		}

		step := (end - start) - overlapChars
		if step < 1 {
			step = 1
		}
		start += step
	}

	return chunks
}

// segment is a [start,end) span of the source text produced by a splitter.
type segment struct {
	start, end int
}

// chunkBySegments accumulates segments into a chunk until adding the next one
// would exceed the token budget, then flushes. A single oversized segment
// still becomes its own chunk so no text is lost.
func (c *Chunker) chunkBySegments(text string, opts ChunkOptions, segments []segment) []domain.TextChunk {
	if len(segments) == 0 {
		return c.chunkWindow(text, opts, true)
	}

	maxChars := opts.MaxTokens * CharsPerToken

	var chunks []domain.TextChunk
	cur := segments[0]

	flush := func() {
		chunks = append(chunks, domain.TextChunk{
			Index:      len(chunks),
			Content:    text[cur.start:cur.end],
			Start:      cur.start,
			End:        cur.end,
			Strategy:   opts.Strategy,
			TokenCount: approxTokens(cur.end - cur.start),
		})
	}

	for _, seg := range segments[1:] {
		// extending keeps the original separator bytes inside the chunk
		if (seg.end-cur.start) > maxChars && cur.end > cur.start {
			flush()
			cur = seg
			continue
		}
		cur.end = seg.end
	}
	flush()

	return chunks
}

// splitSentences finds spans ending with . ! or ? followed by a space or
// newline. The trailing remainder, if any, is its own segment.
func splitSentences(text string) []segment {
	var segs []segment
	start := 0
	for i := 0; i < len(text)-1; i++ {
		ch := text[i]
		if (ch == '.' || ch == '!' || ch == '?') && (text[i+1] == ' ' || text[i+1] == '\n') {
			segs = append(segs, segment{start: start, end: i + 1})
			// skip the separator run so the next segment starts on content
			j := i + 1
			for j < len(text) && (text[j] == ' ' || text[j] == '\n') {
				j++
			}
			start = j
			i = j - 1
		}
	}
	if start < len(text) {
		segs = append(segs, segment{start: start, end: len(text)})
	}
	return segs
}

// splitParagraphs finds spans separated by blank lines.
func splitParagraphs(text string) []segment {
	var segs []segment
	start := 0
	for {
		idx := strings.Index(text[start:], "\n\n")
		if idx < 0 {
			break
		}
		end := start + idx
		if end > start {
			segs = append(segs, segment{start: start, end: end})
		}
		start = end
		for start < len(text) && text[start] == '\n' {
			start++
		}
	}
	if start < len(text) {
		segs = append(segs, segment{start: start, end: len(text)})
	}
	return segs
}

// approxTokens converts a character count to the 4-chars-per-token estimate.
func approxTokens(chars int) int {
	if chars <= 0 {
		return 0
	}
	return (chars + CharsPerToken - 1) / CharsPerToken
}

// describeChunking summarises a chunk run for decision trails and logs.
func describeChunking(strategy domain.ChunkingStrategy, size, overlap int) string {
	return fmt.Sprintf("%s size=%d overlap=%d", strategy, size, overlap)
}
