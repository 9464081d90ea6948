package eventsink

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// Check outcomes.
const (
	OK   = "OK"
	WARN = "WARN"
	FAIL = "FAIL"
)

// CheckRow is one line of a sink connectivity report.
type CheckRow struct {
	Target string
	Status string
	Detail string
	Hint   string
}

// Check dials every broker and verifies the topic is visible. It never
// produces messages.
func Check(ctx context.Context, brokers []string, topic string, timeout time.Duration) []CheckRow {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if len(brokers) == 0 {
		return []CheckRow{{Target: "brokers", Status: FAIL, Detail: "no brokers configured", Hint: "Set RPCDASH_KAFKA_BROKERS."}}
	}

	var rows []CheckRow
	topicSeen := false
	dialer := &kafka.Dialer{Timeout: timeout}
	for _, addr := range brokers {
		dialCtx, cancel := context.WithTimeout(ctx, timeout)
		start := time.Now()
		conn, err := dialer.DialContext(dialCtx, "tcp", addr)
		cancel()
		if err != nil {
			rows = append(rows, CheckRow{Target: addr, Status: FAIL, Detail: "broker dial failed: " + err.Error(), Hint: hint(err)})
			continue
		}
		if _, err := conn.ApiVersions(); err != nil {
			conn.Close()
			rows = append(rows, CheckRow{Target: addr, Status: FAIL, Detail: "ApiVersions failed: " + err.Error(), Hint: hint(err)})
			continue
		}
		rows = append(rows, CheckRow{Target: addr, Status: OK, Detail: fmt.Sprintf("Connected in %s", time.Since(start).Truncate(time.Millisecond))})

		if !topicSeen {
			parts, err := conn.ReadPartitions(topic)
			switch {
			case err != nil:
				rows = append(rows, CheckRow{Target: topic, Status: FAIL, Detail: "ReadPartitions failed: " + err.Error(), Hint: hint(err)})
			case len(parts) == 0:
				rows = append(rows, CheckRow{Target: topic, Status: WARN, Detail: "topic has no partitions", Hint: "Create the topic or enable auto-creation."})
			default:
				topicSeen = true
				rows = append(rows, CheckRow{Target: topic, Status: OK, Detail: fmt.Sprintf("Topic visible; partitions=%d", len(parts))})
			}
		}
		conn.Close()
	}
	return rows
}

// Healthy reports whether no row failed.
func Healthy(rows []CheckRow) bool {
	for _, r := range rows {
		if r.Status == FAIL {
			return false
		}
	}
	return true
}

func hint(err error) string {
	if err == nil {
		return ""
	}
	var ke kafka.Error
	if errors.As(err, &ke) {
		switch ke {
		case kafka.TopicAuthorizationFailed:
			return "Missing topic ACL: Write/Describe on the events topic."
		case kafka.SASLAuthenticationFailed:
			return "SASL is not supported by the event sink; use a plaintext listener."
		case kafka.UnknownTopicOrPartition:
			return "Create the topic or enable auto-creation."
		case kafka.LeaderNotAvailable, kafka.NotLeaderForPartition:
			return "Leader not available; check broker health."
		}
	}
	if isTimeout(err) {
		return "Client timeout: check network path, firewall, DNS or advertised.listeners."
	}
	if strings.Contains(strings.ToLower(err.Error()), "connection refused") {
		return "Nothing is listening on that address; check the broker list."
	}
	return ""
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
