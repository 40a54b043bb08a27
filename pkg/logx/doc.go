// Package logx configures workertimer's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - WARN and ERROR bursts bounded (a tight interval cannot flood the sink)
package logx
