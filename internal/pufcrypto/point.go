package pufcrypto

import (
	"crypto/elliptic"
	"encoding/base64"
	"errors"
	"math/big"
)

// UncompressedLen is the fixed wire length of an affine point encoding:
// 0x04 || X(32) || Y(32) (PUF-ACS design document Section 3).
const UncompressedLen = 65

// ErrInvalidPointEncoding indicates a byte string did not decode to a
// valid uncompressed SECP256R1 point.
var ErrInvalidPointEncoding = errors.New("invalid point encoding")

// ErrPointNotOnCurve indicates decoded coordinates do not satisfy the
// curve equation.
var ErrPointNotOnCurve = errors.New("point is not on SECP256R1")

// ErrIdentityPoint indicates an operation was asked to serialize the
// identity element, which has no uncompressed encoding.
var ErrIdentityPoint = errors.New("identity point has no binary encoding")

// curve returns the process-wide SECP256R1 (NIST P-256) group, the curve
// this protocol is bound to (PUF-ACS design document Section 4.1).
func curve() elliptic.Curve {
	return elliptic.P256()
}

// Point is an affine point on SECP256R1, or the identity element
// (PUF-ACS design document Section 3).
type Point struct {
	x, y       *big.Int
	isIdentity bool
}

// Identity returns the point at infinity.
func Identity() Point {
	return Point{isIdentity: true}
}

// Generator returns G, the fixed generator of SECP256R1
// (PUF-ACS design document Section 3/Section 6: ELLIPTIC_CURVE = SECP256R1).
func Generator() Point {
	p := curve().Params()
	return Point{x: p.Gx, y: p.Gy}
}

// Mul returns P·s, the scalar multiple of the point.
func (p Point) Mul(s Scalar) Point {
	if p.isIdentity || s.IsZero() {
		return Identity()
	}
	x, y := curve().ScalarMult(p.x, p.y, s.BigInt().Bytes())
	return pointFromXY(x, y)
}

// Add returns P+Q.
func (p Point) Add(q Point) Point {
	if p.isIdentity {
		return q
	}
	if q.isIdentity {
		return p
	}
	x, y := curve().Add(p.x, p.y, q.x, q.y)
	return pointFromXY(x, y)
}

// pointFromXY wraps coordinates returned by crypto/elliptic, recognizing
// the (0,0) sentinel crypto/elliptic uses for the identity element.
func pointFromXY(x, y *big.Int) Point {
	if x.Sign() == 0 && y.Sign() == 0 {
		return Identity()
	}
	return Point{x: x, y: y}
}

// Equal reports whether p and q represent the same point.
func (p Point) Equal(q Point) bool {
	if p.isIdentity || q.isIdentity {
		return p.isIdentity == q.isIdentity
	}
	return p.x.Cmp(q.x) == 0 && p.y.Cmp(q.y) == 0
}

// IsIdentity reports whether p is the point at infinity.
func (p Point) IsIdentity() bool {
	return p.isIdentity
}

// AffineX returns the affine X-coordinate as a Scalar
// (PUF-ACS design document Section 9: "expose a single accessor
// affine_x(point) -> scalar" hiding any crypto-library version detail
// such as mbedtls's X/private_X split).
func (p Point) AffineX() (Scalar, error) {
	if p.isIdentity {
		return Scalar{}, mathErr("AffineX", ErrIdentityPoint)
	}
	return NewScalar(p.x), nil
}

// Bytes returns the 65-byte uncompressed encoding 0x04 || X || Y
// (PUF-ACS design document Section 3). Returns ErrIdentityPoint for the
// identity element, which has no such encoding.
func (p Point) Bytes() ([]byte, error) {
	if p.isIdentity {
		return nil, mathErr("Point.Bytes", ErrIdentityPoint)
	}
	return elliptic.Marshal(curve(), p.x, p.y), nil
}

// PointFromBytes decodes a 65-byte uncompressed point, verifying curve
// membership (PUF-ACS design document Section 3: "Identity/invalid
// encodings fail with a math error").
func PointFromBytes(b []byte) (Point, error) {
	if len(b) != UncompressedLen || b[0] != 0x04 {
		return Point{}, mathErr("PointFromBytes", ErrInvalidPointEncoding)
	}
	x, y := elliptic.Unmarshal(curve(), b)
	if x == nil {
		return Point{}, mathErr("PointFromBytes", ErrInvalidPointEncoding)
	}
	if !curve().IsOnCurve(x, y) {
		return Point{}, mathErr("PointFromBytes", ErrPointNotOnCurve)
	}
	return Point{x: x, y: y}, nil
}

// Base64 returns the base64 (standard encoding) of the 65-byte
// uncompressed point.
func (p Point) Base64() (string, error) {
	b, err := p.Bytes()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// PointFromBase64 decodes a base64 string produced by Point.Base64.
func PointFromBase64(s string) (Point, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return Point{}, mathErr("PointFromBase64", err)
	}
	return PointFromBytes(b)
}
