package hlc

import (
	"sync"
	"time"
)

// Clock 是混合逻辑时钟。
// 时间戳打包为 int64：高 48 位是物理时间（毫秒），低 16 位是逻辑计数。
// 返回的时间戳严格单调递增，用于 LWW 写入与同步消息的排序。
type Clock struct {
	mu     sync.Mutex
	latest int64
}

const logicalBits = 16
const logicalMask = (1 << logicalBits) - 1

// New 创建一个新的 HLC 时钟。
func New() *Clock {
	return &Clock{}
}

func pack(phys, logical int64) int64 {
	return (phys << logicalBits) | logical
}

func unpack(ts int64) (phys, logical int64) {
	return ts >> logicalBits, ts & logicalMask
}

// Physical 返回打包时间戳中的物理毫秒部分。
func Physical(ts int64) int64 {
	phys, _ := unpack(ts)
	return phys
}

// Now 返回下一个本地 HLC 时间戳。
func (c *Clock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	phys := time.Now().UnixMilli()
	oldPhys, oldLogical := unpack(c.latest)

	var newPhys, newLogical int64
	if phys > oldPhys {
		newPhys, newLogical = phys, 0
	} else {
		// 物理时间未推进（或回拨）：递增逻辑计数
		newPhys, newLogical = oldPhys, oldLogical+1
	}
	if newLogical > logicalMask {
		// 逻辑计数溢出：向物理位借位
		newPhys++
		newLogical = 0
	}

	c.latest = pack(newPhys, newLogical)
	return c.latest
}

// Update 吸收远程时间戳（接收同步消息时调用），
// 保证本地时钟不落后于任何已观察到的远程事件。
func (c *Clock) Update(remote int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	phys := time.Now().UnixMilli()
	oldPhys, oldLogical := unpack(c.latest)
	remotePhys, remoteLogical := unpack(remote)

	newPhys := oldPhys
	if remotePhys > newPhys {
		newPhys = remotePhys
	}
	if phys > newPhys {
		newPhys = phys
	}

	var newLogical int64
	switch {
	case newPhys == oldPhys && newPhys == remotePhys:
		if oldLogical > remoteLogical {
			newLogical = oldLogical + 1
		} else {
			newLogical = remoteLogical + 1
		}
	case newPhys == oldPhys:
		newLogical = oldLogical + 1
	case newPhys == remotePhys:
		newLogical = remoteLogical + 1
	default:
		newLogical = 0
	}
	if newLogical > logicalMask {
		newPhys++
		newLogical = 0
	}

	c.latest = pack(newPhys, newLogical)
	return c.latest
}

// Latest 返回最近一次分配的时间戳，不推进时钟。
func (c *Clock) Latest() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest
}
