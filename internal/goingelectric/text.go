package goingelectric

import "golang.org/x/net/html"

// decodeEntities はGoingElectricの文字列に含まれるHTMLエンティティをデコードする。
// タグの除去や空白の整形は行わず、それ以外の文字はそのまま残す。
func decodeEntities(raw string) string {
	return html.UnescapeString(raw)
}
