// Package telemetrycore implements the live telemetry query and
// subscription core of an IoT data platform.
//
// # Architecture
//
// The service is structured into several key packages:
//   - aggregation: Chunked time-range aggregation over telemetry keys
//   - database: TimescaleDB integration for samples, attributes and alarms
//   - entity: Declarative entity query resolution with LRU caching
//   - telemetry: In-process fan-out of telemetry writes to subscribers
//   - subscription: Per-session subscription contexts and refresh scheduling
//   - ws: Websocket transport for commands and update pushes
//   - models: Shared data structures
//
// Key Features
//
//   - Aggregation:
//     A time range is split into interval-aligned buckets and each bucket
//     is aggregated concurrently (AVG, MIN, MAX, SUM, COUNT). Results are
//     assembled in bucket order and empty buckets are dropped.
//
//   - Live Subscriptions:
//     Clients subscribe to latest values, rolling time-series windows,
//     entity counts and alarms. Dynamic queries are re-evaluated on a
//     fixed-delay schedule; telemetry writes push deltas immediately.
//
//   - Performance:
//     Uses TimescaleDB hypertables for storage, an LRU cache for entity
//     resolution and per-session rate limiting on inbound commands.
//
// Example Usage
//
//	conn, _, err := websocket.DefaultDialer.Dial("ws://host/api/ws", nil)
//	err = conn.WriteJSON(subscription.CommandEnvelope{
//	    EntityDataCmds: []subscription.EntityDataCmd{{
//	        CmdID: 1,
//	        Query: &models.EntityDataQuery{...},
//	        TsCmd: &subscription.TimeSeriesCmd{Keys: []string{"temperature"}, TimeWindowMs: 3600000},
//	    }},
//	})
//
// For more information about specific packages, see their respective
// documentation.
package telemetrycore
