package rag

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Indexer walks a document tree, chunks each file and embeds the chunks
// into an Index.
type Indexer struct {
	embedder  Embedder
	chunkSize int
	overlap   int
	log       zerolog.Logger
}

// NewIndexer builds an indexer. chunkSize and overlap are in characters;
// zero values get sensible defaults.
func NewIndexer(embedder Embedder, chunkSize, overlap int, log zerolog.Logger) *Indexer {
	if chunkSize <= 0 {
		chunkSize = 1600
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 200
	}
	return &Indexer{embedder: embedder, chunkSize: chunkSize, overlap: overlap, log: log}
}

var languageByExt = map[string]string{
	".go":   "go",
	".py":   "python",
	".js":   "javascript",
	".ts":   "typescript",
	".rs":   "rust",
	".c":    "c",
	".h":    "c",
	".cpp":  "cpp",
	".java": "java",
	".sh":   "shell",
	".md":   "markdown",
	".txt":  "text",
	".rst":  "text",
	".yaml": "yaml",
	".yml":  "yaml",
	".toml": "toml",
	".json": "json",
}

// IndexDir indexes every recognized file under dir into idx. Unreadable
// files are skipped with a warning; the scan itself only fails on a broken
// walk or embedding backend.
func (in *Indexer) IndexDir(ctx context.Context, dir string, idx *Index) (int, error) {
	added := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		lang, ok := languageByExt[strings.ToLower(filepath.Ext(path))]
		if !ok {
			return nil
		}
		n, ferr := in.indexFile(ctx, path, lang, idx)
		if ferr != nil {
			in.log.Warn().Str("path", path).Err(ferr).Msg("skipping unindexable file")
			return nil
		}
		added += n
		return nil
	})
	if err != nil {
		return added, fmt.Errorf("index %s: %w", dir, err)
	}
	in.log.Info().Str("dir", dir).Int("chunks", added).Msg("indexing complete")
	return added, nil
}

func (in *Indexer) indexFile(ctx context.Context, path, lang string, idx *Index) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	spans := chunkSpans(string(b), in.chunkSize, in.overlap)
	for i, sp := range spans {
		content := string(b)[sp[0]:sp[1]]
		vec, err := in.embedder.Embed(ctx, content)
		if err != nil {
			return i, err
		}
		idx.Add(DocumentChunk{
			FilePath:     path,
			Content:      content,
			ChunkIndex:   i,
			StartPos:     sp[0],
			EndPos:       sp[1],
			Language:     lang,
			ModifiedTime: info.ModTime(),
		}, vec)
	}
	return len(spans), nil
}

// chunkSpans splits text into [start,end) character windows of at most size,
// overlapping by overlap, breaking on newline boundaries where possible.
func chunkSpans(text string, size, overlap int) [][2]int {
	if text == "" {
		return nil
	}
	var spans [][2]int
	start := 0
	for start < len(text) {
		end := start + size
		if end >= len(text) {
			spans = append(spans, [2]int{start, len(text)})
			break
		}
		// prefer to cut at the last newline within the window
		cut := strings.LastIndexByte(text[start:end], '\n')
		if cut > size/2 {
			end = start + cut + 1
		}
		spans = append(spans, [2]int{start, end})
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return spans
}
