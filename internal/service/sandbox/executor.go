// Package sandbox 实现不可信代码的隔离执行
// 核心职责：
//  1. 在每次执行时新建
//     goja 解释器实例，能力集为显式白名单（console、定时器、空 process），
//     绝不复制宿主全局对象，无文件系统/网络/进程访问
//  2. 捕获全部输出通道（普通通道和警告/错误通道）
//  3. 墙钟超时通过 goja 的 Interrupt 硬性抢占，死循环同样会被终止
package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/dop251/goja"
)

// Result 一次执行的结果
// Err 非空表示整个求值中止（抛出异常或超时）；
// 中止前已累计的输出保留在 Output 中，不丢弃
type Result struct {
	Output string
	Err    string
}

// noOutput 没有任何输出时的占位内容
const noOutput = "(No output)"

// Executor 代码沙箱执行器
// 无状态，可被多个协程并发调用（每次执行使用独立的解释器实例）
type Executor struct {
	timeout time.Duration // 未显式指定时采用的默认超时
}

// NewExecutor 创建执行器，timeout 为默认墙钟超时
func NewExecutor(timeout time.Duration) *Executor {
	return &Executor{timeout: timeout}
}

// DefaultTimeout 返回默认墙钟超时
func (e *Executor) DefaultTimeout() time.Duration {
	return e.timeout
}

// timerJob 沙箱内注册的定时任务
type timerJob struct {
	id       int64
	fn       goja.Callable
	args     []goja.Value
	due      time.Time
	interval time.Duration // 大于 0 表示周期任务
}

// sandboxRun 单次执行的内部状态
type sandboxRun struct {
	vm      *goja.Runtime
	out     strings.Builder // 普通输出通道
	warnOut strings.Builder // 警告/错误输出通道
	timers  map[int64]*timerJob
	nextId  int64
}

// Execute 执行一段代码，超时时间为 timeout（非正值时采用默认超时）
// 执行保证在 timeout 加少量开销内返回；超时或抛出异常时 Result.Err 非空，
// 沙箱故障永远作为数据返回，不向调用方传播错误、不影响宿主进程
func (e *Executor) Execute(ctx context.Context, code string, timeout time.Duration) Result {
	if timeout <= 0 {
		timeout = e.timeout
	}
	deadline := time.Now().Add(timeout)

	run := &sandboxRun{
		vm:     goja.New(),
		timers: make(map[int64]*timerJob),
	}
	run.installCapabilities()

	// 硬性截止：到点直接中断解释器，不依赖被执行代码主动让出
	watchdog := time.AfterFunc(timeout, func() {
		run.vm.Interrupt("execution timed out")
	})
	defer watchdog.Stop()

	// 上下文取消同样触发中断
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			run.vm.Interrupt("execution cancelled")
		case <-done:
		}
	}()

	value, err := run.vm.RunString(code)
	if err == nil {
		// 主脚本结束后按到期顺序驱动定时器，截止时间一到立即停止，
		// 定时器不能让求值活过超时
		err = run.drainTimers(deadline)
	}
	if err != nil {
		return Result{
			Output: strings.TrimSpace(run.out.String() + run.warnOut.String()),
			Err:    faultMessage(err),
		}
	}

	output := strings.TrimSpace(run.out.String() + run.warnOut.String())
	// 末尾表达式的值追加在返回值标记之后
	if value != nil && !goja.IsUndefined(value) {
		rendered := renderValue(value)
		if output == "" {
			output = "=> " + rendered
		} else {
			output += "\n=> " + rendered
		}
	}
	if output == "" {
		output = noOutput
	}
	return Result{Output: output}
}

// installCapabilities 构建封闭的能力集
// 白名单之外的宿主能力一律不可见；goja 本身不提供 require/fs/net
func (run *sandboxRun) installCapabilities() {
	vm := run.vm

	console := vm.NewObject()
	logFn := func(call goja.FunctionCall) goja.Value {
		run.out.WriteString(joinArgs(call.Arguments) + "\n")
		return goja.Undefined()
	}
	_ = console.Set("log", logFn)
	_ = console.Set("info", logFn)
	_ = console.Set("error", func(call goja.FunctionCall) goja.Value {
		run.warnOut.WriteString(joinArgs(call.Arguments) + "\n")
		return goja.Undefined()
	})
	_ = console.Set("warn", func(call goja.FunctionCall) goja.Value {
		run.warnOut.WriteString("[WARN] " + joinArgs(call.Arguments) + "\n")
		return goja.Undefined()
	})
	_ = vm.Set("console", console)

	_ = vm.Set("setTimeout", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(run.schedule(call, 0))
	})
	_ = vm.Set("setInterval", func(call goja.FunctionCall) goja.Value {
		delay := call.Argument(1).ToInteger()
		if delay < 1 {
			delay = 1
		}
		return vm.ToValue(run.schedule(call, time.Duration(delay)*time.Millisecond))
	})
	clearFn := func(call goja.FunctionCall) goja.Value {
		delete(run.timers, call.Argument(0).ToInteger())
		return goja.Undefined()
	}
	_ = vm.Set("clearTimeout", clearFn)
	_ = vm.Set("clearInterval", clearFn)

	// 宿主环境变量对沙箱不可见，只暴露空的占位对象
	process := vm.NewObject()
	_ = process.Set("env", vm.NewObject())
	_ = vm.Set("process", process)
}

// schedule 注册定时任务，返回任务 ID
// interval 大于 0 表示周期任务
func (run *sandboxRun) schedule(call goja.FunctionCall, interval time.Duration) int64 {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		return 0
	}
	delay := call.Argument(1).ToInteger()
	if delay < 0 {
		delay = 0
	}
	var args []goja.Value
	if len(call.Arguments) > 2 {
		args = call.Arguments[2:]
	}
	run.nextId++
	id := run.nextId
	run.timers[id] = &timerJob{
		id:       id,
		fn:       fn,
		args:     args,
		due:      time.Now().Add(time.Duration(delay) * time.Millisecond),
		interval: interval,
	}
	return id
}

// drainTimers 驱动定时任务直至队列清空或到达截止时间
func (run *sandboxRun) drainTimers(deadline time.Time) error {
	for {
		job := run.nextDue()
		if job == nil {
			return nil
		}
		// 到期时间越过截止线的任务不再执行
		if job.due.After(deadline) {
			return nil
		}
		if wait := time.Until(job.due); wait > 0 {
			time.Sleep(wait)
		}
		// 周期任务先重排再执行，回调里 clearInterval 仍然生效
		if job.interval > 0 {
			job.due = time.Now().Add(job.interval)
		} else {
			delete(run.timers, job.id)
		}
		if _, err := job.fn(goja.Undefined(), job.args...); err != nil {
			return err
		}
	}
}

// nextDue 取最早到期的定时任务
func (run *sandboxRun) nextDue() *timerJob {
	var next *timerJob
	for _, job := range run.timers {
		if next == nil || job.due.Before(next.due) {
			next = job
		}
	}
	return next
}

// joinArgs 按 console 语义格式化参数：
// 复合值做结构化序列化，基本值字符串化，单个空格连接
func joinArgs(args []goja.Value) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		parts = append(parts, renderValue(arg))
	}
	return strings.Join(parts, " ")
}

// renderValue 渲染单个值
func renderValue(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if goja.IsNull(v) {
		return "null"
	}
	switch v.Export().(type) {
	case map[string]interface{}, []interface{}:
		if data, err := json.Marshal(v.Export()); err == nil {
			return string(data)
		}
	}
	return v.String()
}

// faultMessage 将解释器错误转换为简洁的错误消息
func faultMessage(err error) string {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if s, ok := interrupted.Value().(string); ok {
			return s
		}
		return "execution interrupted"
	}
	var exception *goja.Exception
	if errors.As(err, &exception) {
		val := exception.Value()
		// 抛出的是 Error 对象时只取 message，与前端展示保持一致
		if obj, ok := val.(*goja.Object); ok {
			if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) {
				return msg.String()
			}
		}
		return val.String()
	}
	return err.Error()
}
