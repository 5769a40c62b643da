package world

import "classicraft.net/internal/protocol"

// sendTo writes one encoded message to p. Failures are logged; the
// connection's own handler reports the disconnect.
func (w *World) sendTo(p *Player, b []byte) bool {
	if err := p.send(b); err != nil {
		w.logger.Printf("send to player %d (%s): %v", p.ID, p.Name, err)
		return false
	}
	return true
}

// broadcast sends b to every player. One failing sink does not stop the rest.
func (w *World) broadcast(b []byte) {
	for _, p := range w.sortedPlayers() {
		w.sendTo(p, b)
	}
}

// broadcastChat shows text to every player and on the server log.
func (w *World) broadcastChat(text string) {
	w.logger.Print(text)
	w.broadcast(protocol.Encode(&protocol.Message{Text: text}))
}
