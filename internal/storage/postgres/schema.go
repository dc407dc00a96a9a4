package postgres

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// DefaultChannel is the NOTIFY channel the change trigger publishes on.
const DefaultChannel = "hazards_channel"

var validChannel = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// schemaSQL creates the hazards table, the priority and metadata
// functions, and the trigger that publishes change envelopes. The
// envelope keys match hazard.Envelope. Every statement is idempotent.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS hazards (
    id               BIGSERIAL PRIMARY KEY,
    user_id          BIGINT,
    hazard_type      VARCHAR(50) NOT NULL,
    severity         VARCHAR(20) NOT NULL,
    description      TEXT NOT NULL DEFAULT '',
    latitude         DOUBLE PRECISION NOT NULL,
    longitude        DOUBLE PRECISION NOT NULL,
    borough          VARCHAR(100),
    affects_traffic  BOOLEAN NOT NULL DEFAULT FALSE,
    weather_related  BOOLEAN NOT NULL DEFAULT FALSE,
    priority_level   INTEGER NOT NULL DEFAULT 1,
    status           VARCHAR(20) NOT NULL DEFAULT 'active',
    is_resolved      BOOLEAN NOT NULL DEFAULT FALSE,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    resolved_at      TIMESTAMPTZ,

    CONSTRAINT chk_hazards_severity CHECK (severity IN ('low', 'medium', 'high', 'critical')),
    CONSTRAINT chk_hazards_status CHECK (status IN ('active', 'resolved', 'duplicate', 'invalid')),
    CONSTRAINT chk_hazards_latitude CHECK (latitude BETWEEN -90 AND 90),
    CONSTRAINT chk_hazards_longitude CHECK (longitude BETWEEN -180 AND 180)
);

CREATE INDEX IF NOT EXISTS idx_hazards_active_lat_lon ON hazards(latitude, longitude) WHERE status = 'active';
CREATE INDEX IF NOT EXISTS idx_hazards_priority_time ON hazards(priority_level DESC, created_at DESC) WHERE status = 'active';
CREATE INDEX IF NOT EXISTS idx_hazards_status ON hazards(status, updated_at DESC);

CREATE OR REPLACE FUNCTION calculate_hazard_priority(
    p_hazard_type VARCHAR,
    p_severity VARCHAR,
    p_affects_traffic BOOLEAN,
    p_weather_related BOOLEAN
) RETURNS INTEGER AS $$
DECLARE
    score INTEGER;
BEGIN
    score := CASE p_severity
        WHEN 'critical' THEN 10
        WHEN 'high' THEN 7
        WHEN 'medium' THEN 4
        WHEN 'low' THEN 2
        ELSE 1
    END;
    IF p_affects_traffic THEN
        score := score + 3;
    END IF;
    IF p_weather_related THEN
        score := score + 2;
    END IF;
    score := score + CASE p_hazard_type
        WHEN 'crime' THEN 3
        WHEN 'accident' THEN 4
        WHEN 'flooding' THEN 3
        WHEN 'construction' THEN 1
        ELSE 0
    END;
    RETURN LEAST(score, 20);
END;
$$ LANGUAGE plpgsql IMMUTABLE;

CREATE OR REPLACE FUNCTION update_hazard_metadata() RETURNS TRIGGER AS $$
BEGIN
    NEW.priority_level := calculate_hazard_priority(
        NEW.hazard_type, NEW.severity, NEW.affects_traffic, NEW.weather_related);
    NEW.updated_at := NOW();
    IF TG_OP = 'UPDATE' AND NEW.is_resolved AND NOT OLD.is_resolved THEN
        NEW.resolved_at := NOW();
        NEW.status := 'resolved';
    END IF;
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

CREATE OR REPLACE FUNCTION notify_hazard_changes() RETURNS TRIGGER AS $$
DECLARE
    payload JSON;
BEGIN
    IF TG_OP = 'INSERT' THEN
        payload := json_build_object(
            'event_type', 'hazard_created',
            'hazard_id', NEW.id,
            'hazard_type', NEW.hazard_type,
            'severity', NEW.severity,
            'description', NEW.description,
            'latitude', NEW.latitude,
            'longitude', NEW.longitude,
            'priority_level', NEW.priority_level,
            'affects_traffic', NEW.affects_traffic,
            'weather_related', NEW.weather_related,
            'status', NEW.status,
            'created_at', NEW.created_at
        );
        PERFORM pg_notify('{{channel}}', payload::text);
        RETURN NEW;
    END IF;

    IF TG_OP = 'UPDATE' THEN
        IF OLD.status IS DISTINCT FROM NEW.status
            OR OLD.severity IS DISTINCT FROM NEW.severity
            OR OLD.is_resolved IS DISTINCT FROM NEW.is_resolved THEN
            payload := json_build_object(
                'event_type', 'hazard_updated',
                'hazard_id', NEW.id,
                'hazard_type', NEW.hazard_type,
                'description', NEW.description,
                'old_status', OLD.status,
                'new_status', NEW.status,
                'old_severity', OLD.severity,
                'new_severity', NEW.severity,
                'latitude', NEW.latitude,
                'longitude', NEW.longitude,
                'priority_level', NEW.priority_level,
                'affects_traffic', NEW.affects_traffic,
                'weather_related', NEW.weather_related,
                'updated_at', NEW.updated_at
            );
            PERFORM pg_notify('{{channel}}', payload::text);
        END IF;
        RETURN NEW;
    END IF;

    IF TG_OP = 'DELETE' THEN
        payload := json_build_object(
            'event_type', 'hazard_deleted',
            'hazard_id', OLD.id,
            'hazard_type', OLD.hazard_type,
            'severity', OLD.severity,
            'latitude', OLD.latitude,
            'longitude', OLD.longitude,
            'timestamp', NOW()
        );
        PERFORM pg_notify('{{channel}}', payload::text);
        RETURN OLD;
    END IF;

    RETURN NULL;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS trigger_hazard_metadata ON hazards;
DROP TRIGGER IF EXISTS trigger_hazard_notifications ON hazards;

CREATE TRIGGER trigger_hazard_metadata
    BEFORE INSERT OR UPDATE ON hazards
    FOR EACH ROW EXECUTE FUNCTION update_hazard_metadata();

CREATE TRIGGER trigger_hazard_notifications
    AFTER INSERT OR UPDATE OR DELETE ON hazards
    FOR EACH ROW EXECUTE FUNCTION notify_hazard_changes();
`

// SchemaSQL returns the bootstrap script publishing on channel.
func SchemaSQL(channel string) (string, error) {
	if channel == "" {
		channel = DefaultChannel
	}
	if !validChannel.MatchString(channel) {
		return "", fmt.Errorf("invalid notify channel %q", channel)
	}
	return strings.ReplaceAll(schemaSQL, "{{channel}}", channel), nil
}

// EnsureSchema creates the hazards table, its functions and triggers if
// they don't exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	script, err := SchemaSQL(s.channel)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("failed to apply hazard schema: %w", err)
	}
	return nil
}
