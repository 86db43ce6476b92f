package container

import (
	"sync"

	"github.com/samber/lo"
)

// IIncrementalItem 支持增量更新的元素接口
// 功能：元素需要记录自己在数组中的位置，以便O(1)删除
type IIncrementalItem interface {
	Index() int         // 获取元素的索引
	SetIndex(index int) // 设置元素的索引
}

type incrementalItem interface {
	comparable
	IIncrementalItem
}

// IncrementalItemBase 增量元素基类
// 说明：作为嵌入字段快速实现IIncrementalItem接口
type IncrementalItemBase struct {
	index int
}

func (b *IncrementalItemBase) Index() int {
	return b.index
}

func (b *IncrementalItemBase) SetIndex(index int) {
	b.index = index
}

// IncrementalArray 增量数组
// 功能：任意协程都可以提交增删请求，由唯一的所有者协程在安全点调用Prepare统一生效
// 说明：Data只允许所有者协程在两次Prepare之间读取
type IncrementalArray[T incrementalItem] struct {
	data []T
	add  []T
	del  []T
	mtx  sync.Mutex
}

// NewIncrementalArray 创建增量数组
func NewIncrementalArray[T incrementalItem]() *IncrementalArray[T] {
	return &IncrementalArray[T]{
		data: make([]T, 0),
		add:  make([]T, 0),
		del:  make([]T, 0),
	}
}

// Len 获取已生效的元素数
func (a *IncrementalArray[T]) Len() int {
	return len(a.data)
}

// Data 获取已生效的元素
func (a *IncrementalArray[T]) Data() []T {
	return a.data
}

// Add 增加元素（等到Prepare时才会真正增加）
func (a *IncrementalArray[T]) Add(value T) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	a.add = append(a.add, value)
}

// Remove 删除元素（等到Prepare时才会真正删除）
func (a *IncrementalArray[T]) Remove(value T) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	a.del = append(a.del, value)
}

// Prepare 执行增量操作
// 功能：统一执行所有待处理的添加和删除操作
// 算法说明：
// 1. 同一批次内先增后删的元素直接抵消，不进入主数组
// 2. 删除时用末尾元素填补空位并更新其索引
// 3. 新元素追加到末尾并设置索引
func (a *IncrementalArray[T]) Prepare() {
	a.mtx.Lock()
	add, del := a.add, a.del
	a.add, a.del = make([]T, 0), make([]T, 0)
	a.mtx.Unlock()

	if len(add) > 0 && len(del) > 0 {
		both := lo.Intersect(add, del)
		add = lo.Without(add, both...)
		del = lo.Without(del, both...)
	}
	for _, x := range lo.Uniq(del) {
		ind := x.Index()
		if ind < 0 || ind >= len(a.data) || a.data[ind] != x {
			// 未生效或已删除
			continue
		}
		last := len(a.data) - 1
		a.data[ind] = a.data[last]
		a.data[ind].SetIndex(ind)
		a.data = a.data[:last]
		x.SetIndex(-1)
	}
	for _, x := range add {
		x.SetIndex(len(a.data))
		a.data = append(a.data, x)
	}
}
