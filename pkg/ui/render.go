package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/vctt94/pokerhost/pkg/protocol"
	"github.com/vctt94/pokerhost/pkg/server"
)

// Renderer draws a table snapshot.
type Renderer struct {
	// Follow highlights one player by id.
	Follow string
}

// RenderTable draws the whole snapshot.
func (r *Renderer) RenderTable(p server.Presentation) string {
	var sections []string
	sections = append(sections, r.renderStatusHeader(p))
	sections = append(sections, r.renderCommunityCards(p.CommunityCards))
	if pots := r.renderPots(p.PotSize); pots != "" {
		sections = append(sections, pots)
	}
	if players := r.renderPlayers(p); players != "" {
		sections = append(sections, players)
	}
	if winners := r.renderWinners(p.Winners); winners != "" {
		sections = append(sections, winners)
	}
	return tableStyle.Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

func (r *Renderer) renderStatusHeader(p server.Presentation) string {
	header := phaseStyle.Render(p.GameState)
	if p.HandID != "" {
		header += mutedStyle.Render("  hand " + shortID(p.HandID, 8))
	}
	if p.ActionOn != "" {
		header += actionStyle.Render("  action on " + p.ActionOn)
	}
	return header
}

// renderCommunityCards shows dealt cards followed by face-down placeholders.
func (r *Renderer) renderCommunityCards(cards []protocol.Card) string {
	elements := make([]string, 0, 5)
	for _, c := range cards {
		elements = append(elements, styledCard(c))
	}
	for i := len(cards); i < 5; i++ {
		elements = append(elements, cardStyle.Render("🂠"))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, elements...)
}

func (r *Renderer) renderPots(pots []int64) string {
	if len(pots) == 0 {
		return ""
	}
	parts := make([]string, len(pots))
	for i, amt := range pots {
		label := "Main pot"
		if i > 0 {
			label = fmt.Sprintf("Side pot %d", i)
		}
		parts[i] = fmt.Sprintf("%s: %d", label, amt)
	}
	return potStyle.Render(strings.Join(parts, "  "))
}

func (r *Renderer) renderPlayers(p server.Presentation) string {
	if len(p.Players) == 0 {
		return helpStyle.Render("Waiting for players to be seated")
	}
	boxes := make([]string, 0, len(p.Players))
	for _, pl := range p.Players {
		var style lipgloss.Style
		switch {
		case pl.IsWinner:
			style = winnerStyle
		case pl.ID == r.Follow:
			style = followedStyle
		case pl.Name == p.ActionOn:
			style = toActStyle
		case pl.IsFolded:
			style = foldedStyle
		default:
			style = seatStyle
		}
		boxes = append(boxes, style.Render(r.formatPlayerInfo(pl)))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, boxes...)
}

// formatPlayerInfo creates a formatted string for player information
func (r *Renderer) formatPlayerInfo(pl server.PresentationPlayer) string {
	name := pl.Name
	if name == "" {
		name = shortID(pl.ID, 12)
	}
	info := []string{
		fmt.Sprintf("Seat %d", pl.Seat),
		name,
		fmt.Sprintf("💰 %d", pl.Money),
	}

	if len(pl.Cards) > 0 {
		cards := make([]string, len(pl.Cards))
		for i, c := range pl.Cards {
			cards[i] = formatCard(c)
		}
		info = append(info, strings.Join(cards, " "))
	}

	var status []string
	if pl.IsDealer {
		status = append(status, "Ⓓ")
	}
	if pl.IsFolded {
		status = append(status, "❌ Folded")
	}
	if pl.IsWinner {
		status = append(status, "🏆")
	}
	if len(status) > 0 {
		info = append(info, strings.Join(status, " "))
	}
	return strings.Join(info, "\n")
}

func (r *Renderer) renderWinners(winners []protocol.Winner) string {
	if len(winners) == 0 {
		return ""
	}
	lines := make([]string, len(winners))
	for i, w := range winners {
		line := fmt.Sprintf("🏆 %s wins %d", w.Name, w.Amount)
		if w.Ranking != "" {
			line += " with " + w.Ranking
		}
		lines[i] = line
	}
	return titleStyle.Render(strings.Join(lines, "\n"))
}

// formatCard creates a visual representation of a playing card
func formatCard(card protocol.Card) string {
	value := card.Rank
	if value == "T" {
		value = "10"
	}
	return value + getSuitSymbol(card.Suit)
}

func styledCard(c protocol.Card) string {
	if isRedSuit(c.Suit) {
		return redCardStyle.Render(formatCard(c))
	}
	return cardStyle.Render(formatCard(c))
}

// getSuitSymbol returns the appropriate symbol for a suit
func getSuitSymbol(suit string) string {
	switch suit {
	case "spades":
		return "♠"
	case "hearts":
		return "♥"
	case "diamonds":
		return "♦"
	case "clubs":
		return "♣"
	default:
		return "?"
	}
}

// isRedSuit determines if a suit should be displayed in red
func isRedSuit(suit string) bool {
	return suit == "hearts" || suit == "diamonds"
}

func shortID(id string, n int) string {
	if len(id) > n {
		return id[:n] + "..."
	}
	return id
}
