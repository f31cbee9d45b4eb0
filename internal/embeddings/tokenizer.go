package embeddings

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Tokenizer is an uncased BERT WordPiece tokenizer driven by a vocab.txt file
type Tokenizer struct {
	vocab     map[string]int32
	maxLength int
	pad       int32
	unk       int32
	cls       int32
	sep       int32
}

const maxWordChars = 100

// LoadTokenizer reads a vocabulary with one token per line, the line number being its id
func LoadTokenizer(vocabPath string, maxLength int) (*Tokenizer, error) {
	f, err := os.Open(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenizationFailed, err)
	}
	defer f.Close()

	vocab := make(map[string]int32)
	scanner := bufio.NewScanner(f)
	var id int32
	for scanner.Scan() {
		vocab[strings.TrimRight(scanner.Text(), "\r")] = id
		id++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to read vocab: %v", ErrTokenizationFailed, err)
	}

	return NewTokenizer(vocab, maxLength)
}

// NewTokenizer builds a tokenizer from an in-memory vocabulary
func NewTokenizer(vocab map[string]int32, maxLength int) (*Tokenizer, error) {
	if maxLength < 3 {
		return nil, fmt.Errorf("%w: max length %d leaves no room for tokens", ErrConfigError, maxLength)
	}

	t := &Tokenizer{vocab: vocab, maxLength: maxLength}
	for _, special := range []struct {
		token string
		dst   *int32
	}{
		{"[PAD]", &t.pad}, {"[UNK]", &t.unk}, {"[CLS]", &t.cls}, {"[SEP]", &t.sep},
	} {
		id, ok := vocab[special.token]
		if !ok {
			return nil, fmt.Errorf("%w: vocab has no %s token", ErrTokenizationFailed, special.token)
		}
		*special.dst = id
	}
	return t, nil
}

// Tokenize converts text to padded token IDs: [CLS] pieces... [SEP] [PAD]...
func (t *Tokenizer) Tokenize(text string) (*TokenizedInput, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: cannot tokenize empty text", ErrTokenizationFailed)
	}

	ids := []int32{t.cls}
	truncated := false
	for _, word := range basicTokens(text) {
		pieces := t.wordPieces(word)
		if len(ids)+len(pieces) > t.maxLength-1 {
			truncated = true
			break
		}
		ids = append(ids, pieces...)
	}
	ids = append(ids, t.sep)
	length := len(ids)

	mask := make([]int32, t.maxLength)
	for i := range mask {
		if i < length {
			mask[i] = 1
		}
	}
	for len(ids) < t.maxLength {
		ids = append(ids, t.pad)
	}

	return &TokenizedInput{
		InputIDs:      ids,
		AttentionMask: mask,
		TokenTypeIDs:  make([]int32, t.maxLength),
		Length:        length,
		Truncated:     truncated,
	}, nil
}

// wordPieces splits one word greedily, longest prefix first, continuations prefixed "##"
func (t *Tokenizer) wordPieces(word string) []int32 {
	chars := []rune(word)
	if len(chars) > maxWordChars {
		return []int32{t.unk}
	}

	var pieces []int32
	for start := 0; start < len(chars); {
		end := len(chars)
		found := int32(-1)
		for ; end > start; end-- {
			sub := string(chars[start:end])
			if start > 0 {
				sub = "##" + sub
			}
			if id, ok := t.vocab[sub]; ok {
				found = id
				break
			}
		}
		if found < 0 {
			return []int32{t.unk}
		}
		pieces = append(pieces, found)
		start = end
	}
	return pieces
}

// basicTokens lower-cases, strips accents and splits on whitespace and punctuation
func basicTokens(text string) []string {
	strip := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(strip, strings.ToLower(text))
	if err != nil {
		folded = strings.ToLower(text)
	}

	var tokens []string
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	for _, r := range folded {
		switch {
		case unicode.IsSpace(r) || unicode.IsControl(r):
			flush()
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			tokens = append(tokens, string(r))
		default:
			b.WriteRune(r)
		}
	}
	flush()
	return tokens
}
