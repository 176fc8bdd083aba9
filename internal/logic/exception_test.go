package logic

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSyntaxErrorFromParserDiagnostics(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		offset int
		want   string
	}{
		{
			name:   "first diagnostic relative to offset",
			err:    errors.New("14:28 no viable alternative at input\n15:2 extraneous input\n"),
			offset: 11,
			want:   "error(syntax_error('no viable alternative at input'), [line(3), column(28)])",
		},
		{
			name:   "offset larger than line",
			err:    errors.New("1:4 mismatched input"),
			offset: 3,
			want:   "error(syntax_error('mismatched input'), [line(1), column(4)])",
		},
		{
			name: "no position",
			err:  errors.New("empty query\n"),
			want: "error(syntax_error('empty query'), [])",
		},
		{
			name: "position only",
			err:  errors.New("2:7"),
			want: "error(syntax_error('2:7'), [line(2), column(7)])",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, syntaxError(tt.err, tt.offset).String())
		})
	}
}
