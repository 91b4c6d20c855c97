package embedding

import (
	"testing"
)

func TestSimpleTokenizer_Tokenize(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, attn, types := tok.Tokenize("hello world", 10)
	if len(ids) != 10 || len(attn) != 10 || len(types) != 10 {
		t.Fatalf("lengths: ids=%d attn=%d types=%d", len(ids), len(attn), len(types))
	}
	if ids[0] != tokenCLS {
		t.Errorf("expected CLS, got %d", ids[0])
	}
	if ids[3] != tokenSEP {
		t.Errorf("expected SEP after two words, got %d", ids[3])
	}
	if attn[3] != 1 || attn[4] != 0 {
		t.Error("attention mask should cover CLS, words and SEP only")
	}
}

func TestSimpleTokenizer_Truncates(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, attn, _ := tok.Tokenize("a b c d e f g h i j k l", 5)
	if len(ids) != 5 {
		t.Fatalf("len(ids)=%d", len(ids))
	}
	for i, a := range attn {
		if a != 1 {
			t.Errorf("attention[%d] should be 1 when truncated", i)
		}
	}
	if ids[4] != tokenSEP {
		t.Errorf("last token should be SEP, got %d", ids[4])
	}
}

func TestSplitWords(t *testing.T) {
	words := SplitWords("  Hello,  WORLD!  c  ")
	if len(words) != 3 || words[0] != "hello" || words[1] != "world" {
		t.Errorf("got %v", words)
	}
	if SplitWords("") != nil {
		t.Error("empty string should return nil")
	}
}

func TestHashString(t *testing.T) {
	h := HashString("abc")
	if h == 0 {
		t.Error("hash should be non-zero")
	}
	if HashString("abc") != HashString("abc") {
		t.Error("hash should be deterministic")
	}
	if HashString("abc") == HashString("abd") {
		t.Error("different strings should hash differently")
	}
}
