package api

import "net/http"

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	proc := s.orchestrator.Processor()
	writeJSON(w, http.StatusOK, map[string]any{
		"queue_depth":       s.orchestrator.QueueDepth(),
		"chunking_strategy": proc.MetricName(),
		"chunk_size":        proc.ChunkConfig().ChunkSize,
		"chunk_overlap":     proc.ChunkConfig().ChunkOverlap,
		"totals":            s.orchestrator.Stats(),
		"latency":           s.orchestrator.Latency().Snapshot(),
	})
}
