package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/easybet/internal/domain"
)

// --------------------------------------------------------------------------
// EIP-712 type hashes (keccak256 of the canonical type strings).
// --------------------------------------------------------------------------

var (
	// EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"),
	)

	// Permit(address owner,address spender,uint256 value,uint256 nonce,uint256 deadline)
	tokenPermitTypeHash = ethcrypto.Keccak256(
		[]byte("Permit(address owner,address spender,uint256 value,uint256 nonce,uint256 deadline)"),
	)

	// TicketPermit(address spender,uint256 tokenId,uint256 nonce,uint256 deadline)
	ticketPermitTypeHash = ethcrypto.Keccak256(
		[]byte("TicketPermit(address spender,uint256 tokenId,uint256 nonce,uint256 deadline)"),
	)
)

// Domain identifies the verifying ledger for EIP-712 typed data.
type Domain struct {
	Name              string
	Version           string
	ChainID           uint64
	VerifyingContract common.Address
}

// Separator returns keccak256(abi.encode(typeHash, nameHash, versionHash, chainId, verifyingContract)).
func (d Domain) Separator() []byte {
	return ethcrypto.Keccak256(
		eip712DomainTypeHash,
		ethcrypto.Keccak256([]byte(d.Name)),
		ethcrypto.Keccak256([]byte(d.Version)),
		word(uint256.NewInt(d.ChainID)),
		common.LeftPadBytes(d.VerifyingContract.Bytes(), 32),
	)
}

// TokenPermitDigest is the digest an owner signs to let spender pull value.
func TokenPermitDigest(d Domain, owner, spender common.Address, value *uint256.Int, nonce, deadline uint64) []byte {
	if value == nil {
		value = new(uint256.Int)
	}
	structHash := ethcrypto.Keccak256(
		tokenPermitTypeHash,
		common.LeftPadBytes(owner.Bytes(), 32),
		common.LeftPadBytes(spender.Bytes(), 32),
		word(value),
		word(uint256.NewInt(nonce)),
		word(uint256.NewInt(deadline)),
	)
	return eip712Hash(d.Separator(), structHash)
}

// TicketPermitDigest is the digest a ticket owner signs to approve spender.
func TicketPermitDigest(d Domain, spender common.Address, ticketID, nonce, deadline uint64) []byte {
	structHash := ethcrypto.Keccak256(
		ticketPermitTypeHash,
		common.LeftPadBytes(spender.Bytes(), 32),
		word(uint256.NewInt(ticketID)),
		word(uint256.NewInt(nonce)),
		word(uint256.NewInt(deadline)),
	)
	return eip712Hash(d.Separator(), structHash)
}

// RequestDigest is the personal-sign digest of an API request:
//
//	keccak256("\x19Ethereum Signed Message:\n32" || keccak256(method || path || timestamp || keccak256(body)))
func RequestDigest(method, path string, timestamp int64, body []byte) []byte {
	inner := ethcrypto.Keccak256(
		[]byte(strings.ToUpper(method)),
		[]byte(path),
		[]byte(strconv.FormatInt(timestamp, 10)),
		ethcrypto.Keccak256(body),
	)
	return ethcrypto.Keccak256([]byte("\x19Ethereum Signed Message:\n32"), inner)
}

// Recover returns the address that produced sig over digest. Both the 0/1
// and 27/28 recovery id conventions are accepted.
func Recover(digest, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("crypto/signer: signature must be 65 bytes, got %d", len(sig))
	}
	s := make([]byte, 65)
	copy(s, sig)
	if s[64] >= 27 {
		s[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(digest, s)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/signer: recover: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// Signer holds a secp256k1 key and produces signatures the engine accepts.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key.
func NewSigner(privateKeyHex string) (*Signer, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	return NewSignerFromKey(pk), nil
}

// NewSignerFromKey wraps an already parsed key.
func NewSignerFromKey(pk *ecdsa.PrivateKey) *Signer {
	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
	}
}

// Address returns the account controlled by the signer.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignDigest signs a 32-byte digest. The recovery byte is shifted to 27/28.
func (s *Signer) SignDigest(digest []byte) ([]byte, error) {
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: sign: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

// SignTokenPermit produces a permit for spender to pull value from the
// signer's balance.
func (s *Signer) SignTokenPermit(d Domain, spender common.Address, value *uint256.Int, nonce, deadline uint64) (domain.TokenPermit, error) {
	sig, err := s.SignDigest(TokenPermitDigest(d, s.address, spender, value, nonce, deadline))
	if err != nil {
		return domain.TokenPermit{}, err
	}
	return domain.TokenPermit{
		Owner:     s.address,
		Spender:   spender,
		Value:     value,
		Deadline:  deadline,
		Signature: sig,
	}, nil
}

// SignTicketPermit produces a permit for spender to move ticketID.
func (s *Signer) SignTicketPermit(d Domain, spender common.Address, ticketID, nonce, deadline uint64) (domain.TicketPermit, error) {
	sig, err := s.SignDigest(TicketPermitDigest(d, spender, ticketID, nonce, deadline))
	if err != nil {
		return domain.TicketPermit{}, err
	}
	return domain.TicketPermit{
		Spender:   spender,
		TicketID:  ticketID,
		Deadline:  deadline,
		Signature: sig,
	}, nil
}

// SignRequest signs an API request for the X-Signature header.
func (s *Signer) SignRequest(method, path string, timestamp int64, body []byte) ([]byte, error) {
	return s.SignDigest(RequestDigest(method, path, timestamp, body))
}

// eip712Hash computes keccak256("\x19\x01" || domainSeparator || structHash).
func eip712Hash(domainSep, structHash []byte) []byte {
	return ethcrypto.Keccak256([]byte{0x19, 0x01}, domainSep, structHash)
}

func word(v *uint256.Int) []byte {
	b := v.Bytes32()
	return b[:]
}
