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
	"context"
	"strconv"

	"docconv/internal/pipeline/common"
)

// decodeZIPListing 归档只列出条目（名称、大小、修改时间），不解压
func decodeZIPListing(_ context.Context, data []byte, _ *common.ConversionOptions) (*Parsed, error) {
	zr, err := openZip(data)
	if err != nil {
		return nil, err
	}
	rows := [][]string{{"name", "size", "modified"}}
	var total uint64
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rows = append(rows, []string{f.Name, strconv.FormatUint(f.UncompressedSize64, 10), f.Modified.UTC().Format("2006-01-02 15:04:05")})
		total += f.UncompressedSize64
	}
	b := newBuilder()
	b.table(rows)
	content := b.build()
	content.Structure.Pages = 1
	return &Parsed{
		Content: content,
		Metadata: common.DocumentMetadata{
			PageCount: 1,
			Properties: map[string]string{
				"entries":           strconv.Itoa(len(rows) - 1),
				"uncompressed_size": strconv.FormatUint(total, 10),
			},
		},
	}, nil
}
