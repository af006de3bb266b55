package main

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/LUKASS111/Jarvis-V0.19-sub002/pkg/conflict"
	"github.com/LUKASS111/Jarvis-V0.19-sub002/pkg/manager"
)

// adminHandlers 把实例元信息和冲突处理挂到指标服务的 mux 上。
func adminHandlers(mux *http.ServeMux, mgr *manager.Manager, resolver *conflict.Resolver) {
	mux.HandleFunc("/states", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, mgr.ListStates())
	})

	mux.HandleFunc("/conflicts/pending", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, resolver.Pending())
	})

	mux.HandleFunc("/conflicts/history", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, resolver.History())
	})

	// 提交一对操作做冲突检测, 命中规则的直接解决。
	mux.HandleFunc("/conflicts/detect", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var ops [2]conflict.Operation
		if err := json.NewDecoder(r.Body).Decode(&ops); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ev := resolver.Detect(ops[0], ops[1])
		if ev == nil {
			writeJSON(w, map[string]any{"conflict": false})
			return
		}
		res, err := resolver.Resolve(ev)
		out := map[string]any{"conflict": true, "event": ev}
		if err == nil {
			out["resolution"] = res
		}
		writeJSON(w, out)
	})

	// 人工裁定一个待处理冲突。
	mux.HandleFunc("/conflicts/resolve", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			ID     string `json:"id"`
			Winner int    `json:"winner"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		res, err := resolver.ResolveManually(req.ID, req.Winner)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, res)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[Admin] 响应编码失败: %v", err)
	}
}
