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

package codec

import (
	"bytes"
	"context"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"docconv/internal/pipeline/common"
)

// decodeText 纯文本：空行分段；非 UTF-8 输入按 Windows-1252 解码
func decodeText(_ context.Context, data []byte, _ *common.ConversionOptions) (*Parsed, error) {
	return &Parsed{Content: TextContent(toUTF8(data)), Metadata: common.DocumentMetadata{PageCount: 1}}, nil
}

// TextContent 纯文本按空行分段构造内容
func TextContent(text string) common.DocumentContent {
	b := newBuilder()
	for _, para := range blankLines.Split(strings.ReplaceAll(text, "\r\n", "\n"), -1) {
		b.paragraph(para)
	}
	return b.build()
}

// encodeText 以块为单位输出纯文本
func encodeText(_ context.Context, doc *Parsed, _ *common.ConversionOptions) ([]byte, error) {
	return []byte(PlainText(doc.Content)), nil
}

// PlainText 内容的纯文本渲染
func PlainText(c common.DocumentContent) string {
	var sb strings.Builder
	for i, blk := range Blocks(c) {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(blk.Text)
	}
	if sb.Len() > 0 {
		sb.WriteByte('\n')
	}
	return sb.String()
}

func toUTF8(data []byte) string {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	if utf8.Valid(data) {
		return string(data)
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return strings.ToValidUTF8(string(data), "�")
	}
	return string(out)
}
