package sqlinline

const QSelectUserPlanByID = `--sql ea5b4db8-6eef-4455-9365-d7b57ffc21a6
select id::text, email, plan
from users
where id = $1::uuid
limit 1;
`

const QSelectUserPlanByEmail = `--sql c68e846d-dded-40ec-a5d9-0c1cdf1109f7
select id::text, email, plan
from users
where lower(email) = lower($1::text)
limit 1;
`

const QUpdateUserPlan = `--sql 81865b59-a379-407b-b299-34dcab62480a
update users
set plan = $2::text,
    updated_at = now()
where id = $1::uuid
returning id::text, email, plan;
`
