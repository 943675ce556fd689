// Package influxdb writes access telemetry to InfluxDB v2.
//
// Every verify decision and custody change becomes one point, so dashboards
// can chart grant/deny rates per door and keys out over time. Writes are
// non-blocking and batched by the official influxdb-client-go v2 library;
// asynchronous write errors are delivered to the SetOnError callback.
//
// # Measurements
//
//	access_decision  tags: outcome, code     fields: serial, credential_id, resources, matched
//	key_custody      tags: action, outcome   fields: serial, credential_id, key, held
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteAccessDecision(influxdb.DecisionSample{Serial: "ABC123", Granted: true})
package influxdb
