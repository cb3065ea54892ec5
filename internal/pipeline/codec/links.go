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
	"strings"

	"docconv/internal/pipeline/common"
)

type linkSegment struct {
	text string
	url  string
}

// linkQueue 按出现顺序把链接文本回填到段落中
type linkQueue struct {
	links   []common.DocumentLink
	next    int
	enabled bool
}

func newLinkQueue(links []common.DocumentLink, enabled bool) *linkQueue {
	return &linkQueue{links: links, enabled: enabled}
}

// split 切分段落，命中的链接文本单独成段并带 URL
func (q *linkQueue) split(text string) []linkSegment {
	if !q.enabled || q.next >= len(q.links) {
		return []linkSegment{{text: text}}
	}
	var out []linkSegment
	rest := text
	for q.next < len(q.links) {
		j, idx := q.find(rest)
		if j < 0 {
			break
		}
		l := q.links[j]
		if idx > 0 {
			out = append(out, linkSegment{text: rest[:idx]})
		}
		out = append(out, linkSegment{text: l.Text, url: l.URL})
		rest = rest[idx+len(l.Text):]
		q.next = j + 1
	}
	if rest != "" || len(out) == 0 {
		out = append(out, linkSegment{text: rest})
	}
	return out
}

// find 在剩余链接中找第一个出现在 s 中的
func (q *linkQueue) find(s string) (int, int) {
	for j := q.next; j < len(q.links); j++ {
		t := q.links[j].Text
		if t == "" {
			continue
		}
		if idx := strings.Index(s, t); idx >= 0 {
			return j, idx
		}
	}
	return -1, -1
}

// remaining 未回填的链接
func (q *linkQueue) remaining() []common.DocumentLink {
	if !q.enabled || q.next >= len(q.links) {
		return nil
	}
	return q.links[q.next:]
}
