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

import "errors"

var (
	// ErrUnsupportedFormat 未注册的格式
	ErrUnsupportedFormat = errors.New("codec: unsupported format")
	// ErrMalformed 输入损坏或结构不符
	ErrMalformed = errors.New("codec: malformed input")
	// ErrNoBitmap 图像编码需要位图
	ErrNoBitmap = errors.New("codec: source has no bitmap")
	// ErrPasswordRequired 加密文档且未提供密码
	ErrPasswordRequired = errors.New("codec: password required")
)
