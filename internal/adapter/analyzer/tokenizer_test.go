package analyzer

import (
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	tokenizer := NewTokenizer()

	cases := []struct {
		input string
		want  []string
	}{
		{"Federal Reserve cuts rates", []string{"federal", "reserve", "cuts", "rates"}},
		{"Bitcoin hits $100,000!", []string{"bitcoin", "hits", "100", "000"}},
		{"", nil},
		{"   \t\n", nil},
		{"S&P 500 index", []string{"s", "p", "500", "index"}},
	}

	for _, tc := range cases {
		got := tokenizer.Tokenize(tc.input)
		if len(got) == 0 && len(tc.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("Tokenize(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestUniqueTokens(t *testing.T) {
	tokenizer := NewTokenizer()

	set := tokenizer.UniqueTokens("rates rates Rates market")
	if len(set) != 2 {
		t.Errorf("expected 2 distinct tokens, got %d", len(set))
	}
	if _, ok := set["rates"]; !ok {
		t.Error("expected lowercase token in set")
	}
}
