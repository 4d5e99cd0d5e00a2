package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/oppboard/oppboard/pkg/models"
)

// CreateNotification inserts the row unless the dedupe key
// (recipient, engagement, to_state) already has one. INSERT OR IGNORE keeps
// the check and the insert atomic; zero rows affected means a redelivered
// event.
func (r *Repo) CreateNotification(ctx context.Context, n *models.Notification) (int64, bool, error) {
	if n == nil {
		return 0, false, fmt.Errorf("notification is nil")
	}
	if n.Created == 0 {
		n.Created = now()
	}

	var engagementID any
	if n.EngagementID != nil {
		engagementID = *n.EngagementID
	}
	var payload any
	if len(n.Payload) > 0 {
		payload = string(n.Payload)
	}

	res, err := r.conn.Exec(ctx, `INSERT OR IGNORE INTO notifications (recipient_id, type, title, message, payload, engagement_id, to_state, is_read, created) VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		n.RecipientID, string(n.Type), n.Title, n.Message, payload, engagementID, n.ToState, n.Created)
	if err != nil {
		return 0, false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	if affected == 0 {
		return 0, false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (r *Repo) GetNotification(ctx context.Context, id int64) (*models.Notification, error) {
	row := r.conn.QueryRow(ctx, `SELECT id, recipient_id, type, title, message, payload, engagement_id, to_state, is_read, created FROM notifications WHERE id = ?`, id)

	n, err := scanNotification(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return n, nil
}

// ListNotificationsByRecipient returns the newest rows first. created is
// assigned at commit and the store's clock is monotonic per row, so it is the
// sole ordering key.
func (r *Repo) ListNotificationsByRecipient(ctx context.Context, recipientID int64, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.conn.QueryRows(ctx, `SELECT id, recipient_id, type, title, message, payload, engagement_id, to_state, is_read, created FROM notifications WHERE recipient_id = ? ORDER BY created DESC, id DESC LIMIT ?`, recipientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		n, err := scanNotificationRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func (r *Repo) UnreadCountByRecipient(ctx context.Context, recipientID int64) (int64, error) {
	row := r.conn.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE recipient_id = ? AND is_read = 0`, recipientID)
	var cnt int64
	if err := row.Scan(&cnt); err != nil {
		return 0, err
	}
	return cnt, nil
}

func (r *Repo) MarkNotificationRead(ctx context.Context, id, recipientID int64) (bool, error) {
	res, err := r.conn.Exec(ctx, `UPDATE notifications SET is_read = 1 WHERE id = ? AND recipient_id = ? AND is_read = 0`, id, recipientID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Repo) MarkAllNotificationsRead(ctx context.Context, recipientID int64) (int64, error) {
	res, err := r.conn.Exec(ctx, `UPDATE notifications SET is_read = 1 WHERE recipient_id = ? AND is_read = 0`, recipientID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *Repo) DeleteNotification(ctx context.Context, id, recipientID int64) (bool, bool, error) {
	row := r.conn.QueryRow(ctx, `SELECT is_read FROM notifications WHERE id = ? AND recipient_id = ?`, id, recipientID)
	var isRead int
	if err := row.Scan(&isRead); err != nil {
		if err == sql.ErrNoRows {
			return false, false, nil
		}
		return false, false, err
	}

	res, err := r.conn.Exec(ctx, `DELETE FROM notifications WHERE id = ? AND recipient_id = ?`, id, recipientID)
	if err != nil {
		return false, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, false, err
	}
	return n > 0, n > 0 && isRead == 0, nil
}

func scanNotification(row *sql.Row) (*models.Notification, error) {
	var n models.Notification
	var typ string
	var payload sql.NullString
	var engagementID sql.NullInt64
	var isRead int
	if err := row.Scan(&n.ID, &n.RecipientID, &typ, &n.Title, &n.Message, &payload, &engagementID, &n.ToState, &isRead, &n.Created); err != nil {
		return nil, err
	}
	fillNotification(&n, typ, payload, engagementID, isRead)
	return &n, nil
}

func scanNotificationRows(rows *sql.Rows) (*models.Notification, error) {
	var n models.Notification
	var typ string
	var payload sql.NullString
	var engagementID sql.NullInt64
	var isRead int
	if err := rows.Scan(&n.ID, &n.RecipientID, &typ, &n.Title, &n.Message, &payload, &engagementID, &n.ToState, &isRead, &n.Created); err != nil {
		return nil, err
	}
	fillNotification(&n, typ, payload, engagementID, isRead)
	return &n, nil
}

func fillNotification(n *models.Notification, typ string, payload sql.NullString, engagementID sql.NullInt64, isRead int) {
	n.Type = models.NotificationType(typ)
	if payload.Valid {
		n.Payload = json.RawMessage(payload.String)
	}
	if engagementID.Valid {
		n.EngagementID = &engagementID.Int64
	}
	n.IsRead = isRead == 1
}
