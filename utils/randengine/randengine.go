// 随机数引擎，包装了golang.org/x/exp/rand，提供仿真中常用的随机抽样方法
package randengine

import (
	"flag"

	"golang.org/x/exp/rand"
)

var (
	seedOffset = flag.Uint64("rand.seed_offset", 0, "seed offset") // 种子偏移量，用于调整随机数生成
)

// Engine 随机数引擎
// 功能：提供可复现的随机数生成，所有方法均非线程安全，需在单一执行上下文中使用
type Engine struct {
	*rand.Rand // 底层随机数生成器
}

// New 创建随机数引擎
// 功能：以seed+seedOffset为种子初始化随机数引擎
// 参数：seed-随机数种子
// 返回：随机数引擎指针
func New(seed uint64) *Engine {
	return &Engine{Rand: rand.New(rand.NewSource(seed + *seedOffset))}
}

// Derive 派生子引擎
// 功能：根据基础种子与实体ID生成独立的子引擎，保证每个实体的随机序列互不干扰且可复现
// 参数：seed-基础种子，id-实体ID
// 返回：子引擎
func Derive(seed uint64, id int64) *Engine {
	// splitmix64的乘子，用于打散相邻ID
	return New(seed ^ (uint64(id)+1)*0x9e3779b97f4a7c15)
}

// PTrue 以指定概率返回true
func (e *Engine) PTrue(p float64) bool {
	return e.Float64() < p
}

// Choice 从n个元素中等概率选择一个下标
// 功能：返回[0, n)范围内的随机整数，n<=0时返回-1
func (e *Engine) Choice(n int) int {
	if n <= 0 {
		return -1
	}
	return e.Intn(n)
}

// Sample 无放回抽样
// 功能：从[0, n)中无放回地抽取k个下标
// 参数：n-总体大小，k-样本大小（k>=n时返回全部下标的一个排列）
// 返回：抽取的下标列表
// 算法说明：部分Fisher-Yates洗牌，只打乱前k个位置
func (e *Engine) Sample(n, k int) []int {
	if k > n {
		k = n
	}
	if k <= 0 {
		return []int{}
	}
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	for i := 0; i < k; i++ {
		j := i + e.Intn(n-i)
		perm[i], perm[j] = perm[j], perm[i]
	}
	return perm[:k]
}
