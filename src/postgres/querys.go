package postgres

const FIND_MUTATED_QUERY = "SELECT %s FROM %s WHERE updated_at > $1 ORDER BY updated_at, id LIMIT $2"

const COUNT_LIVE_ROWS_QUERY = "SELECT COUNT(*) FROM %s WHERE deleted_at IS NULL"

const VERIFY_TABLE_QUERY = "SELECT COUNT(*) FROM %s"

const CREATOR_DISPLAY_NAME_QUERY = "SELECT display_name FROM creators WHERE id = $1 AND deleted_at IS NULL"

const CREATE_WATERMARKS_TABLE_QUERY = `
CREATE TABLE IF NOT EXISTS sync_watermarks (
	entity     TEXT PRIMARY KEY,
	watermark  TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const LOAD_WATERMARK_QUERY = "SELECT watermark FROM sync_watermarks WHERE entity = $1"

const SAVE_WATERMARK_QUERY = `
INSERT INTO sync_watermarks (entity, watermark, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (entity) DO UPDATE
SET watermark = EXCLUDED.watermark, updated_at = now()`
