// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ocr

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	calls  [][]string
	text   string
	tsv    string
	err    error
	exists []bool
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	_, statErr := os.Stat(args[0])
	f.exists = append(f.exists, statErr == nil)
	if f.err != nil {
		return nil, []byte("bad image"), f.err
	}
	if args[len(args)-1] == "tsv" {
		return []byte(f.tsv), nil, nil
	}
	return []byte(f.text), nil, nil
}

const sampleTSV = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
	"5\t1\t1\t1\t1\t1\t0\t0\t10\t10\t90\tHello\n" +
	"5\t1\t1\t1\t1\t2\t0\t0\t10\t10\t70\tworld\n" +
	"4\t1\t1\t1\t1\t0\t0\t0\t10\t10\t-1\t\n"

func TestRecognize(t *testing.T) {
	runner := &fakeRunner{text: "Hello   \nworld\n\n\n\nend\f", tsv: sampleTSV}
	r := NewRecognizer(Config{Enable: true, Lang: "deu", PSM: 6, TempDir: t.TempDir()}, runner)

	res, err := r.Recognize(context.Background(), []byte("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "Hello\nworld\n\nend", res.Text)
	assert.InDelta(t, 0.8, res.Confidence, 1e-9)

	require.Len(t, runner.calls, 2)
	assert.Equal(t, "tesseract", runner.calls[0][0])
	assert.Equal(t, []string{"stdout", "-l", "deu", "--psm", "6"}, runner.calls[0][2:])
	assert.Equal(t, "tsv", runner.calls[1][len(runner.calls[1])-1])
	assert.Equal(t, []bool{true, true}, runner.exists)

	_, statErr := os.Stat(runner.calls[0][1])
	assert.True(t, os.IsNotExist(statErr), "temp image should be removed")
}

func TestRecognize_Disabled(t *testing.T) {
	r := NewRecognizer(Config{}, &fakeRunner{})
	_, err := r.Recognize(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, ErrDisabled)
	assert.False(t, r.Enabled())
}

func TestRecognize_RunnerError(t *testing.T) {
	runner := &fakeRunner{err: errors.New("exit status 1")}
	r := NewRecognizer(Config{Enable: true, TempDir: t.TempDir()}, runner)
	_, err := r.Recognize(context.Background(), []byte("x"))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "bad image"))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "a\nb", Normalize("┌──┐\r\na  \nb\n"))
	assert.Equal(t, "", Normalize("  \n\n "))
}

func TestMeanConfidence_Empty(t *testing.T) {
	assert.Equal(t, 0.0, meanConfidence("level\tconf\n"))
}
