package lottery

import (
	"github.com/shopspring/decimal"
	"go.dedis.ch/veilroll/core/access"
	"go.dedis.ch/veilroll/core/store"
	"go.dedis.ch/veilroll/core/store/prefixed"
	"go.dedis.ch/veilroll/fhe"
)

// HasTicket returns true if the owner has bought a ticket.
func HasTicket(r store.Readable, owner access.Identity) (bool, error) {
	var ticket ticketRecord

	_, err := readRecord(prefixed.NewReadable(ContractName, r), ticketPrefix, owner, &ticket)
	if err != nil {
		return false, err
	}

	return ticket.Purchased, nil
}

// GetTicket returns the handles of the numbers of the ticket of the owner, or
// zero handles when the owner has no ticket.
func GetTicket(r store.Readable, owner access.Identity) (fhe.Handle, fhe.Handle, error) {
	var ticket ticketRecord

	_, err := readRecord(prefixed.NewReadable(ContractName, r), ticketPrefix, owner, &ticket)
	if err != nil {
		return fhe.Handle{}, fhe.Handle{}, err
	}

	return ticket.First, ticket.Second, nil
}

// HasDraw returns true if the owner has drawn at least once.
func HasDraw(r store.Readable, owner access.Identity) (bool, error) {
	var draw drawRecord

	_, err := readRecord(prefixed.NewReadable(ContractName, r), drawPrefix, owner, &draw)
	if err != nil {
		return false, err
	}

	return draw.Performed, nil
}

// GetLastDraw returns the handles of the numbers of the last draw of the
// owner, or zero handles when the owner has never drawn.
func GetLastDraw(r store.Readable, owner access.Identity) (fhe.Handle, fhe.Handle, error) {
	var draw drawRecord

	_, err := readRecord(prefixed.NewReadable(ContractName, r), drawPrefix, owner, &draw)
	if err != nil {
		return fhe.Handle{}, fhe.Handle{}, err
	}

	return draw.DrawnFirst, draw.DrawnSecond, nil
}

// GetDrawCount returns the number of draws of the owner.
func GetDrawCount(r store.Readable, owner access.Identity) (uint64, error) {
	var draw drawRecord

	_, err := readRecord(prefixed.NewReadable(ContractName, r), drawPrefix, owner, &draw)
	if err != nil {
		return 0, err
	}

	return draw.Count, nil
}

// GetPoints returns the handle of the points of the owner. It is the zero
// handle when the owner has never bought a ticket.
func GetPoints(r store.Readable, owner access.Identity) (fhe.Handle, error) {
	var points pointsRecord

	_, err := readRecord(prefixed.NewReadable(ContractName, r), pointsPrefix, owner, &points)
	if err != nil {
		return fhe.Handle{}, err
	}

	return points.Score, nil
}

// GetPot returns the amount in wei collected by the ticket sales.
func GetPot(r store.Readable) (decimal.Decimal, error) {
	return readPot(prefixed.NewReadable(ContractName, r))
}
