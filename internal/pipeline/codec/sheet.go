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
	"encoding/csv"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"docconv/internal/pipeline/common"
)

// decodeXLSX 每个工作表输出一个一级标题（表名）和一张表
func decodeXLSX(ctx context.Context, data []byte, opts *common.ConversionOptions) (*Parsed, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data), excelize.Options{Password: opts.Password})
	if err != nil {
		return nil, fmt.Errorf("%w: open workbook: %v", ErrMalformed, err)
	}
	defer f.Close()

	b := newBuilder()
	sheets := f.GetSheetList()
	for _, sheet := range sheets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		b.heading(sheet, 1)
		b.table(rows)
	}

	meta := common.DocumentMetadata{PageCount: len(sheets), PasswordProtected: opts.Password != ""}
	if props, err := f.GetDocProps(); err == nil && props != nil {
		meta.Title = props.Title
		meta.Author = props.Creator
		meta.Subject = props.Subject
		meta.Keywords = splitKeywords(props.Keywords)
		meta.CreationDate = parseTime(props.Created)
		meta.ModificationDate = parseTime(props.Modified)
		if props.Description != "" {
			meta.Properties = map[string]string{"description": props.Description}
		}
	}
	content := b.build()
	content.Structure.Pages = len(sheets)
	return &Parsed{Content: content, Metadata: meta}, nil
}

// encodeXLSX 每张表一个工作表，表前紧邻的标题作为表名；无表格时逐块写入 A 列
func encodeXLSX(ctx context.Context, doc *Parsed, opts *common.ConversionOptions) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	type sheetData struct {
		name string
		rows [][]string
	}
	var sheets []sheetData
	var pendingName string
	blocks := Blocks(doc.Content)
	for _, blk := range blocks {
		switch blk.Kind {
		case BlockHeading:
			pendingName = blk.Text
		case BlockTable:
			sheets = append(sheets, sheetData{name: pendingName, rows: blk.Table.Cells})
			pendingName = ""
		default:
			pendingName = ""
		}
	}
	if len(sheets) == 0 {
		var rows [][]string
		for _, blk := range blocks {
			rows = append(rows, []string{blk.Text})
		}
		sheets = append(sheets, sheetData{name: plainTitle(doc), rows: rows})
	}

	used := map[string]bool{}
	for i, s := range sheets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := sheetName(s.name, i+1, used)
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return nil, err
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
		for r, row := range s.rows {
			cellRef, err := excelize.CoordinatesToCellName(1, r+1)
			if err != nil {
				return nil, err
			}
			values := make([]interface{}, len(row))
			for c, v := range row {
				values[c] = v
			}
			if err := f.SetSheetRow(name, cellRef, &values); err != nil {
				return nil, err
			}
		}
	}
	f.SetActiveSheet(0)

	if opts.PreserveMetadata {
		if err := f.SetDocProps(&excelize.DocProperties{
			Title:    doc.Metadata.Title,
			Creator:  doc.Metadata.Author,
			Subject:  doc.Metadata.Subject,
			Keywords: strings.Join(doc.Metadata.Keywords, ", "),
		}); err != nil {
			return nil, err
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// sheetName 工作表名：去除非法字符，最长 31 字符，重名加序号
func sheetName(name string, n int, used map[string]bool) string {
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`:\/?*[]`, r) {
			return ' '
		}
		return r
	}, collapse(name))
	if name == "" {
		name = fmt.Sprintf("Sheet%d", n)
	}
	if utf8.RuneCountInString(name) > 31 {
		name = string([]rune(name)[:31])
	}
	base := name
	for i := 2; used[strings.ToLower(name)]; i++ {
		suffix := fmt.Sprintf(" (%d)", i)
		r := []rune(base)
		if len(r)+len(suffix) > 31 {
			r = r[:31-len(suffix)]
		}
		name = string(r) + suffix
	}
	used[strings.ToLower(name)] = true
	return name
}

// delimiter csv.delimiter 自定义选项仅对逗号格式生效
func delimiter(def rune, opts *common.ConversionOptions) rune {
	if def != ',' {
		return def
	}
	if r, _ := utf8.DecodeRuneInString(opts.CustomOption("csv.delimiter", ",")); r != utf8.RuneError {
		return r
	}
	return def
}

func delimitedDecoder(def rune) DecoderFunc {
	return func(_ context.Context, data []byte, opts *common.ConversionOptions) (*Parsed, error) {
		r := csv.NewReader(strings.NewReader(toUTF8(data)))
		r.Comma = delimiter(def, opts)
		r.FieldsPerRecord = -1
		r.LazyQuotes = true
		records, err := r.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		b := newBuilder()
		b.table(records)
		content := b.build()
		content.Structure.Pages = 1
		return &Parsed{Content: content, Metadata: common.DocumentMetadata{PageCount: 1}}, nil
	}
}

func delimitedEncoder(def rune) EncoderFunc {
	return func(_ context.Context, doc *Parsed, opts *common.ConversionOptions) ([]byte, error) {
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		w.Comma = delimiter(def, opts)
		if len(doc.Content.Tables) > 0 {
			for _, t := range doc.Content.Tables {
				if err := w.WriteAll(t.Cells); err != nil {
					return nil, err
				}
			}
		} else {
			for _, blk := range Blocks(doc.Content) {
				if err := w.Write([]string{blk.Text}); err != nil {
					return nil, err
				}
			}
		}
		w.Flush()
		return buf.Bytes(), w.Error()
	}
}
