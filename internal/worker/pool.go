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

// Package worker 有界 worker 池：引擎的 convert/extract 调用在池中执行，与调用方协程隔离
package worker

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/semaphore"

	"docconv/pkg/metrics"
)

// Pool 有界并发池，容量与在途请求数无关
type Pool struct {
	sem  *semaphore.Weighted
	size int
}

// NewPool 创建容量为 size 的池；size <= 0 时取 CPU 数
func NewPool(size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: size}
}

// Size 池容量
func (p *Pool) Size() int {
	return p.size
}

// Do 占用一个 worker 执行 fn，阻塞至完成；等待槽位期间 ctx 取消则直接返回 ctx 错误。
// fn 中的 panic 转为错误返回
func (p *Pool) Do(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	metrics.WorkerBusy.Inc()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panic: %v", r)
		}
		metrics.WorkerBusy.Dec()
		p.sem.Release(1)
	}()
	return fn(ctx)
}

// Run 在池中执行返回值的函数
func Run[T any](ctx context.Context, p *Pool, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}
