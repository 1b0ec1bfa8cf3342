package component

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// Feature: sandbox, Property 12: Component payloads survive an encode/decode cycle unchanged
func TestPayloadLossless(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := Component{
			ID:   rapid.StringMatching(`[a-z][a-z-]{0,15}`).Draw(t, "id"),
			Name: rapid.String().Draw(t, "name"),
			HTML: "<" + rapid.String().Draw(t, "html") + ">",
		}
		data, err := Encode(c)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		got, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if got != c {
			t.Fatalf("got %+v, want %+v", got, c)
		}
	})
}

func TestDecodeRejects(t *testing.T) {
	for _, in := range []string{`nope`, `{"name":"x"}`, `{"id":"a","html":""}`} {
		_, err := Decode([]byte(in))
		require.True(t, errors.Is(err, ErrInvalid), "input %s: %v", in, err)
	}
}

func TestInsert(t *testing.T) {
	tests := []struct {
		name, doc, html, want string
	}{
		{"before body", "<body>\n<p>a</p>\n</body>\n</html>", "<hr>", "<body>\n<p>a</p>\n<hr>\n</body>\n</html>"},
		{"last body wins", "<body></body><!-- </body> -->", "<hr>", "<body></body><!-- <hr>\n</body> -->"},
		{"no body", "<p>a</p>", "<hr>", "<p>a</p>\n<hr>"},
		{"empty", "", "<hr>", "<hr>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Insert(tt.doc, tt.html))
		})
	}
}

func TestCatalog(t *testing.T) {
	cats := Catalog()
	require.Len(t, cats, 4)
	require.Equal(t, "Layout", cats[0].Name)

	seen := map[string]bool{}
	for _, cat := range cats {
		for _, c := range cat.Components {
			require.False(t, seen[c.ID], "duplicate id %s", c.ID)
			seen[c.ID] = true
			require.NotEmpty(t, c.HTML)
		}
	}

	cats[0].Components[0].HTML = "changed"
	c, ok := Find("container")
	require.True(t, ok)
	require.NotEqual(t, "changed", c.HTML)

	_, ok = Find("missing")
	require.False(t, ok)
}
