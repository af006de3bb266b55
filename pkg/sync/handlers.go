package sync

import (
	"context"
	"errors"
	"log"

	"github.com/LUKASS111/Jarvis-V0.19-sub002/pkg/crdt"
	"github.com/LUKASS111/Jarvis-V0.19-sub002/pkg/manager"
)

// handleSyncRequest 处理摘要比对请求。
// 摘要一致只回确认; 不一致回完整状态; 本地没有该实例时
// 回空摘要, 让请求方把状态推过来。
func (s *Synchronizer) handleSyncRequest(ctx context.Context, msg *SyncMessage) {
	p, ok := s.peers.Get(msg.SourceNode)
	if !ok {
		return
	}
	resp := s.newMessage(MsgSyncResponse, msg.SourceNode)
	resp.CRDTName = msg.CRDTName
	resp.CRDTType = msg.CRDTType

	local, err := s.mgr.Digest(msg.CRDTName)
	switch {
	case errors.Is(err, manager.ErrNotFound):
		resp.Digest = 0
	case err != nil:
		log.Printf("[Sync] 计算 %s 摘要失败: %v", msg.CRDTName, err)
		return
	case local == msg.Digest:
		resp.Digest = local
		s.metrics.SyncsSkipped.Inc()
	default:
		data, err := s.mgr.Export(msg.CRDTName)
		if err != nil {
			log.Printf("[Sync] 导出 %s 失败: %v", msg.CRDTName, err)
			return
		}
		typ, _ := s.mgr.TypeOf(msg.CRDTName)
		resp.Digest = local
		resp.Data = data
		resp.CRDTType = byte(typ)
	}

	if err := s.send(ctx, p, resp); err != nil {
		log.Printf("[Sync] 回复 %s 失败: %v", msg.SourceNode, err)
	}
}

// handleSyncResponse 处理摘要比对的回复。
func (s *Synchronizer) handleSyncResponse(ctx context.Context, msg *SyncMessage) {
	name := msg.CRDTName

	if msg.Data == nil {
		own, err := s.mgr.Digest(name)
		if err != nil {
			return
		}
		if msg.Digest == own {
			// 双方一致, 本轮无需传输
			s.peers.MarkSynced(msg.SourceNode)
			return
		}
		// 对方没有或已分叉但没带数据, 把本地状态推过去
		s.pushState(ctx, msg.SourceNode, name)
		return
	}

	if err := s.mgr.Import(name, crdt.Type(msg.CRDTType), msg.Data); err != nil {
		log.Printf("[Sync] ⚠️ 合并来自 %s 的 %s 失败: %v", msg.SourceNode, name, err)
		return
	}
	s.metrics.SyncsTotal.Inc()
	s.peers.MarkSynced(msg.SourceNode)

	// 合并后本地可能包含对方没有的部分, 回推一份保证双向收敛
	own, err := s.mgr.Digest(name)
	if err == nil && own != msg.Digest {
		s.pushState(ctx, msg.SourceNode, name)
	}
}

// handleDelta 合并一条入站的状态广播。
func (s *Synchronizer) handleDelta(ctx context.Context, msg *SyncMessage) {
	if err := s.mgr.Import(msg.CRDTName, crdt.Type(msg.CRDTType), msg.Data); err != nil {
		log.Printf("[Sync] ⚠️ 合并来自 %s 的 %s 失败: %v", msg.SourceNode, msg.CRDTName, err)
		return
	}
	s.metrics.SyncsTotal.Inc()
	s.peers.MarkSynced(msg.SourceNode)
}

// handleHeartbeat 处理入站心跳。
func (s *Synchronizer) handleHeartbeat(ctx context.Context, msg *SyncMessage) {
	s.heartbeat.OnHeartbeat(msg.SourceNode)
}

// pushState 把一个实例的完整状态发给指定对端。
func (s *Synchronizer) pushState(ctx context.Context, peerID, name string) {
	p, ok := s.peers.Get(peerID)
	if !ok {
		return
	}
	data, err := s.mgr.Export(name)
	if err != nil {
		return
	}
	typ, err := s.mgr.TypeOf(name)
	if err != nil {
		return
	}
	msg := s.newMessage(MsgDelta, peerID)
	msg.CRDTName = name
	msg.CRDTType = byte(typ)
	msg.Data = data
	if err := s.send(ctx, p, msg); err != nil {
		log.Printf("[Sync] 推送 %s 到 %s 失败: %v", name, peerID, err)
	}
}
