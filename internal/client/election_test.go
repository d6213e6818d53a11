package client

import (
	"testing"

	"github.com/edforge/interview/internal/domain"
)

func TestShouldInitiateOperatorCallsNonOperator(t *testing.T) {
	operators := []domain.Role{domain.RoleInstructor, domain.RoleBusinessPartner}
	others := []domain.Role{domain.RoleLearner, domain.RoleObserver}

	for _, op := range operators {
		for _, other := range others {
			if !ShouldInitiate("zzz", op, "aaa", other) {
				t.Errorf("%s should initiate toward %s regardless of id order", op, other)
			}
			if ShouldInitiate("aaa", other, "zzz", op) {
				t.Errorf("%s should wait for %s", other, op)
			}
		}
	}
}

func TestShouldInitiateSameClassUsesIDOrder(t *testing.T) {
	pairs := [][2]domain.Role{
		{domain.RoleInstructor, domain.RoleBusinessPartner},
		{domain.RoleInstructor, domain.RoleInstructor},
		{domain.RoleLearner, domain.RoleObserver},
		{domain.RoleLearner, domain.RoleLearner},
	}
	for _, p := range pairs {
		if !ShouldInitiate("aaa", p[0], "bbb", p[1]) {
			t.Errorf("smaller id with role %s should initiate toward %s", p[0], p[1])
		}
		if ShouldInitiate("bbb", p[0], "aaa", p[1]) {
			t.Errorf("larger id with role %s should wait for %s", p[0], p[1])
		}
	}
}

// For every ordered pair of participants exactly one side must decide to
// offer, otherwise both wait forever or both offer at once.
func TestShouldInitiateExactlyOneSide(t *testing.T) {
	roles := []domain.Role{
		domain.RoleInstructor,
		domain.RoleLearner,
		domain.RoleObserver,
		domain.RoleBusinessPartner,
	}
	ids := []domain.UserID{"11111111-aaaa", "22222222-bbbb", "33333333-cccc"}

	for _, ra := range roles {
		for _, rb := range roles {
			for _, ia := range ids {
				for _, ib := range ids {
					if ia == ib {
						continue
					}
					a := ShouldInitiate(ia, ra, ib, rb)
					b := ShouldInitiate(ib, rb, ia, ra)
					if a == b {
						t.Errorf("pair (%s/%s, %s/%s): both sides computed %v", ia, ra, ib, rb, a)
					}
				}
			}
		}
	}
}
